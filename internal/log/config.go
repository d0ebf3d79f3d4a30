package log

const (
	DefaultPattern    = "%time [%level] %caller: %msg %field\n"
	DefaultTimeLayout = "2006-01-02 15:04:05.000"
)

type LoggerConfig struct {
	Level     string           `mapstructure:"level"`
	Pattern   string           `mapstructure:"pattern"`
	Time      string           `mapstructure:"time"`
	Caller    bool             `mapstructure:"caller"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig selects one output. Type is "console" or "file"; Options
// holds the type specific settings (see FileAppenderOpt).
type AppenderConfig struct {
	Type    string                 `mapstructure:"type"`
	Options map[string]interface{} `mapstructure:"options"`
}
