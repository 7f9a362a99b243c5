package config

import (
	"regexp"

	"github.com/bubuagent/bubu-agent/internal/model"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// rawContent mirrors the content file layout (content.yaml).
type rawContent struct {
	General struct {
		MaxMessageLength int    `mapstructure:"max_message_length"`
		MaxEmojis        int    `mapstructure:"max_emojis"`
		TruncationMarker string `mapstructure:"truncation_marker"`
	} `mapstructure:"general"`

	Windows map[string]struct {
		Start         string `mapstructure:"start"`
		End           string `mapstructure:"end"`
		JitterMinutes int    `mapstructure:"jitter_minutes"`
	} `mapstructure:"windows"`

	Dnd struct {
		Start string `mapstructure:"start"`
		End   string `mapstructure:"end"`
	} `mapstructure:"dnd"`

	PromptTemplates map[string]struct {
		System string `mapstructure:"system"`
		User   string `mapstructure:"user"`
	} `mapstructure:"prompt_templates"`

	FallbackTemplates map[string][]string `mapstructure:"fallback_templates"`
	SignatureClosers  []string            `mapstructure:"signature_closers"`
	BollywoodQuotes   []string            `mapstructure:"bollywood_quotes"`
	CheesyLines       []string            `mapstructure:"cheesy_lines"`
	ForbiddenTopics   []string            `mapstructure:"forbidden_topics"`
}

// Content is the immutable, process-lifetime content bundle: schedule
// windows, quiet hours, templates and validation limits. Loaded once at
// startup and treated as read-only afterwards.
type Content struct {
	maxMessageLength int
	maxEmojis        int
	truncationMarker string

	windows map[model.MessageType]model.ScheduleWindow
	dnd     model.DndRange

	promptSystem map[model.MessageType]string
	promptUser   map[model.MessageType]string
	fallbacks    map[model.MessageType][]string
	closers      []string
	quotes       []string
	cheesyLines  []string
	forbidden    []*regexp.Regexp
}

// Default windows and quiet hours, used when the content file omits them.
var defaultWindows = map[model.MessageType][2]string{
	model.TypeMorning: {"06:45", "09:30"},
	model.TypeFlirty:  {"12:00", "17:30"},
	model.TypeNight:   {"21:30", "23:30"},
}

const (
	defaultJitterMinutes    = 20
	defaultDndStart         = "23:45"
	defaultDndEnd           = "06:30"
	defaultMaxMessageLength = 300
	defaultMaxEmojis        = 5
	defaultTruncationMarker = "..."
)

// LoadContent reads and validates the content file. A malformed window
// (start >= end) is a configuration error rejected here, never downstream.
func LoadContent(path string) (*Content, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read content file")
	}

	var raw rawContent
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errors.Wrap(err, "unmarshal content file")
	}

	return buildContent(&raw)
}

func buildContent(raw *rawContent) (*Content, error) {
	c := &Content{
		maxMessageLength: raw.General.MaxMessageLength,
		maxEmojis:        raw.General.MaxEmojis,
		truncationMarker: raw.General.TruncationMarker,
		windows:          make(map[model.MessageType]model.ScheduleWindow),
		promptSystem:     make(map[model.MessageType]string),
		promptUser:       make(map[model.MessageType]string),
		fallbacks:        make(map[model.MessageType][]string),
		closers:          raw.SignatureClosers,
		quotes:           raw.BollywoodQuotes,
		cheesyLines:      raw.CheesyLines,
	}
	if c.maxMessageLength <= 0 {
		c.maxMessageLength = defaultMaxMessageLength
	}
	if c.maxEmojis <= 0 {
		c.maxEmojis = defaultMaxEmojis
	}
	if c.truncationMarker == "" {
		c.truncationMarker = defaultTruncationMarker
	}
	if c.maxMessageLength <= len([]rune(c.truncationMarker)) {
		return nil, errors.Errorf("max_message_length %d must exceed the truncation marker length %d",
			c.maxMessageLength, len([]rune(c.truncationMarker)))
	}

	for _, t := range model.AllTypes() {
		startStr, endStr := defaultWindows[t][0], defaultWindows[t][1]
		jitter := defaultJitterMinutes
		if w, ok := raw.Windows[t.String()]; ok {
			startStr, endStr = w.Start, w.End
			jitter = w.JitterMinutes
		}
		start, err := model.ParseMinuteOfDay(startStr)
		if err != nil {
			return nil, errors.Wrapf(err, "window %s start", t)
		}
		end, err := model.ParseMinuteOfDay(endStr)
		if err != nil {
			return nil, errors.Wrapf(err, "window %s end", t)
		}
		if start >= end {
			return nil, errors.Errorf("window %s: start %s must be before end %s", t, start, end)
		}
		if jitter < 0 {
			return nil, errors.Errorf("window %s: jitter must be >= 0", t)
		}
		c.windows[t] = model.ScheduleWindow{Type: t, Start: start, End: end, JitterMin: jitter}

		if p, ok := raw.PromptTemplates[t.String()]; ok {
			c.promptSystem[t] = p.System
			c.promptUser[t] = p.User
		}
		c.fallbacks[t] = raw.FallbackTemplates[t.String()]
	}

	dndStart, dndEnd := defaultDndStart, defaultDndEnd
	if raw.Dnd.Start != "" && raw.Dnd.End != "" {
		dndStart, dndEnd = raw.Dnd.Start, raw.Dnd.End
	}
	start, err := model.ParseMinuteOfDay(dndStart)
	if err != nil {
		return nil, errors.Wrap(err, "dnd start")
	}
	end, err := model.ParseMinuteOfDay(dndEnd)
	if err != nil {
		return nil, errors.Wrap(err, "dnd end")
	}
	c.dnd = model.DndRange{Start: start, End: end}

	for _, pattern := range raw.ForbiddenTopics {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "forbidden topic pattern %q", pattern)
		}
		c.forbidden = append(c.forbidden, re)
	}

	return c, nil
}

func (c *Content) Window(t model.MessageType) model.ScheduleWindow { return c.windows[t] }
func (c *Content) Dnd() model.DndRange                             { return c.dnd }
func (c *Content) MaxMessageLength() int                           { return c.maxMessageLength }
func (c *Content) MaxEmojis() int                                  { return c.maxEmojis }
func (c *Content) TruncationMarker() string                        { return c.truncationMarker }
func (c *Content) SignatureClosers() []string                      { return c.closers }
func (c *Content) BollywoodQuotes() []string                       { return c.quotes }
func (c *Content) CheesyLines() []string                           { return c.cheesyLines }
func (c *Content) ForbiddenTopics() []*regexp.Regexp               { return c.forbidden }

func (c *Content) PromptTemplate(t model.MessageType) (system, user string) {
	return c.promptSystem[t], c.promptUser[t]
}

func (c *Content) FallbackTemplates(t model.MessageType) []string {
	return c.fallbacks[t]
}
