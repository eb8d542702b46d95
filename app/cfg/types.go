package cfg

const (
	ModeRun    = "run"
	ModeServe  = "serve"
	ModeStatus = "status"
)

type Cfg struct {
	// Storage
	SourcesDir  string
	DataDir     string
	JournalPath string

	// Application configuration
	Mode         string
	Port         string
	BaseUrl      string
	WorkerCount  int
	Concurrency  int
	APIAccessKey string

	// Fetching
	UserAgent   string
	ChromePath  string
	UserDataDir string
	Headful     bool

	// Application metadata
	Timezone  string
	Debug     bool
	LogFormat string
	Version   string
}
