package log

import (
	"fmt"
	"io"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func (m *MultiWriter) Len() int { return len(m.writers) }

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *lumberjack.Logger {
	writer := &lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    options.MaxSize,    // megabytes
		MaxBackups: options.MaxBackups, // number of backups
		MaxAge:     options.MaxAge,     // days
		Compress:   options.Compress,   // compress the backups
	}
	m.writers = append(m.writers, writer)
	return writer
}

// addAppender opens one configured appender and returns its closer, if any.
func (m *MultiWriter) addAppender(a AppenderConfig) (io.Closer, error) {
	switch a.Type {
	case "", "console":
		m.Add(os.Stdout)
		return nil, nil
	case "file":
		var opt FileAppenderOpt
		if err := mapstructure.WeakDecode(a.Options, &opt); err != nil {
			return nil, fmt.Errorf("file appender options: %w", err)
		}
		if opt.Filename == "" {
			return nil, fmt.Errorf("file appender requires filename")
		}
		return m.AddFileAppender(opt), nil
	default:
		return nil, fmt.Errorf("unknown appender type %q", a.Type)
	}
}
