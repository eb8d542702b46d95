package ledger

// Field names shared by every source profile. A profile picks an ordered
// subset of these for its ledger header and feed items.
const (
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldPubDate     = "pubDate"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldStartTime   = "start_time"
)

// KnownFields lists every field a profile may declare.
var KnownFields = []string{
	FieldTitle,
	FieldLink,
	FieldPubDate,
	FieldDescription,
	FieldCategory,
	FieldStartTime,
}

// DefaultFields is the field set used when a profile does not declare one.
var DefaultFields = []string{FieldTitle, FieldLink, FieldPubDate}

// Record is a single ledger row keyed by field name. Publication dates are
// kept in the source's native free-text format.
type Record map[string]string

func (r Record) Title() string {
	return r[FieldTitle]
}

func (r Record) Link() string {
	return r[FieldLink]
}

func (r Record) PubDate() string {
	return r[FieldPubDate]
}

func (r Record) Description() string {
	return r[FieldDescription]
}

// Row projects the record onto the given field order. Missing fields are
// returned as empty strings.
func (r Record) Row(fields []string) []string {
	row := make([]string, len(fields))
	for i, field := range fields {
		row[i] = r[field]
	}
	return row
}
