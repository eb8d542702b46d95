package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/rss-ledger/app/ledger"
	"github.com/robfig/cron/v3"
)

type ConfigCache struct {
	sourcesDir string
	dataDir    string
	cache      map[string]*Source
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir, dataDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		dataDir:    dataDir,
		cache:      make(map[string]*Source),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive source name from filename (remove .yml extension)
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		source, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", sourceName, "type", source.Type, "enabled", source.Settings.Enabled)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Source, error) {
	configFile := cc.getConfigFilePath(sourceName)
	source, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	source.Name = sourceName
	cc.resolvePaths(source)

	if err := cc.validateConfig(source); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[source.Name] = source

	return source, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Source, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	source, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return source, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Source {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Source, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

// GetEnabledSources returns enabled sources sorted by name.
func (cc *ConfigCache) GetEnabledSources() []*Source {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sources := make([]*Source, 0, len(cc.cache))
	for _, v := range cc.cache {
		if v.Settings.Enabled {
			sources = append(sources, v)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Source, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if source.Type == "" {
		source.Type = SourceTypeListing
	}
	if source.Schedule == "" {
		source.Schedule = DefaultSchedule
	}
	if len(source.Fields) == 0 {
		source.Fields = slices.Clone(ledger.DefaultFields)
	}
	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = DefaultTimeout
	}
	if source.Settings.MaxPages == 0 {
		source.Settings.MaxPages = DefaultMaxPages
	}
	if source.Settings.SpanDays == 0 {
		source.Settings.SpanDays = DefaultSpanDays
	}
	if source.Settings.Window == 0 {
		source.Settings.Window = DefaultWindow
	}
	if source.Settings.Ordering == "" {
		source.Settings.Ordering = OrderingArrival
	}
	if source.Settings.Key == "" {
		source.Settings.Key = ledger.KeyPolicyLink
	}
	if source.Settings.Key == ledger.KeyPolicyComposite && len(source.Settings.KeyParams) == 0 {
		source.Settings.KeyParams = slices.Clone(ledger.DefaultKeyParams)
	}
	if source.Selectors.LinkAttr == "" {
		source.Selectors.LinkAttr = "href"
	}

	return &source, nil
}

func (cc *ConfigCache) resolvePaths(source *Source) {
	ledgerFile := source.Settings.Ledger
	if ledgerFile == "" {
		ledgerFile = source.Name + ".csv"
	}
	outputFile := source.Settings.Output
	if outputFile == "" {
		outputFile = source.Name + ".xml"
	}

	source.LedgerPath = cc.dataPath(ledgerFile)
	source.OutputPath = cc.dataPath(outputFile)
}

func (cc *ConfigCache) dataPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(cc.dataDir, file)
}

func (cc *ConfigCache) validateConfig(source *Source) error {
	if source == nil {
		return fmt.Errorf("source is nil")
	}

	requiredFields := map[string]string{
		"source name": source.Name,
		"source URL":  source.URL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	nonNegativeFields := map[string]int{
		"timeout":   source.Settings.Timeout,
		"max pages": source.Settings.MaxPages,
		"span days": source.Settings.SpanDays,
		"window":    source.Settings.Window,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	for _, required := range ledger.DefaultFields {
		if !source.HasField(required) {
			return fmt.Errorf("fields must include %q", required)
		}
	}
	for i, field := range source.Fields {
		if !slices.Contains(ledger.KnownFields, field) {
			return fmt.Errorf("invalid field at index %d: %s", i, field)
		}
	}

	switch source.Settings.Ordering {
	case OrderingArrival, OrderingDate:
	default:
		return fmt.Errorf("invalid ordering: %s", source.Settings.Ordering)
	}

	switch source.Settings.Key {
	case ledger.KeyPolicyLink, ledger.KeyPolicyComposite:
	default:
		return fmt.Errorf("invalid key policy: %s", source.Settings.Key)
	}

	if _, err := cron.ParseStandard(source.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", source.Schedule, err)
	}

	return cc.validateSelectors(source)
}

func (cc *ConfigCache) validateSelectors(source *Source) error {
	var required map[string]string

	switch source.Type {
	case SourceTypeRSS:
		return nil
	case SourceTypeListing:
		required = map[string]string{
			"item selector": source.Selectors.Item,
			"date selector": source.Selectors.Date,
		}
	case SourceTypeCalendar:
		if !strings.Contains(source.URL, "{yyyymm}") {
			return fmt.Errorf("calendar URL must contain {yyyymm}")
		}
		required = map[string]string{
			"day selector":      source.Selectors.Day,
			"day date selector": source.Selectors.DayDate,
			"event selector":    source.Selectors.Event,
		}
	default:
		return fmt.Errorf("invalid source type: %s", source.Type)
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required for %s sources", name, source.Type)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}
