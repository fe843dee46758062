package config

import (
	"fmt"
	"strings"

	"github.com/energy-in-joles/C-Compiler/pkg/cli"
)

type Feature int

const (
	FeatCComments Feature = iota
	FeatCharEscapes
	FeatTernary
	FeatDoWhile
	FeatImplicitConversion
	FeatImplicitDecl
	FeatCount
)

type Warning int

const (
	WarnUnreachableCode Warning = iota
	WarnImplicitConversion
	WarnImplicitDecl
	WarnUnusedVariable
	WarnShadow
	WarnTruncatedChar
	WarnUnrecognizedEscape
	WarnOverflow
	WarnMissingReturn
	WarnPedantic
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Config carries the target description and the feature and warning switches
// shared by every stage of a compilation.
type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	TargetArch       string
	ABI              string
	WordSize         int
	ArgRegs          int
	DefaultFrameSize int
	StackAlignment   int
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),

		TargetArch:       "rv32",
		ABI:              "ilp32d",
		WordSize:         4,
		ArgRegs:          8,
		DefaultFrameSize: 32,
		StackAlignment:   16,
	}

	features := map[Feature]Info{
		FeatCComments:          {"c-comments", true, "Recognize C99 '//' line comments."},
		FeatCharEscapes:        {"char-escapes", true, "Recognize '\\' escapes in character and string literals."},
		FeatTernary:            {"ternary", true, "Allow the conditional operator 'c ? a : b'."},
		FeatDoWhile:            {"do-while", true, "Allow 'do ... while (c);' loops."},
		FeatImplicitConversion: {"implicit-conversion", false, "Convert between integer and floating kinds at assignments, arguments and returns."},
		FeatImplicitDecl:       {"implicit-decl", true, "Allow calls to undeclared functions, assumed to return int."},
	}

	warnings := map[Warning]Info{
		WarnUnreachableCode:    {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnImplicitConversion: {"implicit-conversion", true, "Warn when a value is converted between integer and floating kinds."},
		WarnImplicitDecl:       {"implicit-decl", true, "Warn about calls to undeclared functions."},
		WarnUnusedVariable:     {"unused-variable", false, "Warn about local variables that are never read."},
		WarnShadow:             {"shadow", false, "Warn when a local declaration hides an outer one."},
		WarnTruncatedChar:      {"truncated-char", true, "Warn when a character escape value is truncated to a byte."},
		WarnUnrecognizedEscape: {"u-esc", true, "Warn on unrecognized character escape sequences."},
		WarnOverflow:           {"overflow", true, "Warn when an integer constant does not fit in 32 bits."},
		WarnMissingReturn:      {"missing-return", true, "Warn when a non-void function can fall off its end."},
		WarnPedantic:           {"pedantic", false, "Issue all warnings demanded by strict C90."},
		WarnExtra:              {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

// SetFrameSize overrides the initial frame capacity. Frames double from this
// value, so it must be a positive multiple of the stack alignment.
func (c *Config) SetFrameSize(n int) error {
	if n <= 0 || n%c.StackAlignment != 0 {
		return fmt.Errorf("frame size %d is not a positive multiple of %d", n, c.StackAlignment)
	}
	c.DefaultFrameSize = n
	return nil
}

// ApplyFlag applies one -W/-F style switch. It reports whether the name was
// recognized.
func (c *Config) ApplyFlag(flag string) bool {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			if i != WarnPedantic {
				c.SetWarning(i, enable)
			}
		}
		return true
	}

	if name == "pedantic" && isWarning {
		c.SetWarning(WarnPedantic, enable)
		if enable {
			c.SetFeature(FeatCComments, false)
			c.SetFeature(FeatImplicitDecl, false)
		}
		return true
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
			return true
		}
		return false
	}
	if f, ok := c.FeatureMap[name]; ok {
		c.SetFeature(f, enable)
		return true
	}
	return false
}

// ApplyFlagString applies a whitespace separated list of switches, as found
// in the RVCC_FLAGS environment variable.
func (c *Config) ApplyFlagString(flags string) []string {
	var unknown []string
	for _, flag := range strings.Fields(flags) {
		if !c.ApplyFlag(flag) {
			unknown = append(unknown, flag)
		}
	}
	return unknown
}

// SetupFlagGroups registers -W<name>/-Wno-<name> and -F<name>/-Fno-<name>
// switches on fs. The returned entries are indexed by Warning and Feature.
func (c *Config) SetupFlagGroups(fs *cli.FlagSet) ([]cli.FlagGroupEntry, []cli.FlagGroupEntry) {
	warningFlags := make([]cli.FlagGroupEntry, WarnCount)
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		enabled, disabled := false, false
		warningFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "W", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled, Default: info.Enabled,
		}
	}

	featureFlags := make([]cli.FlagGroupEntry, FeatCount)
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		enabled, disabled := false, false
		featureFlags[i] = cli.FlagGroupEntry{
			Name: info.Name, Prefix: "F", Usage: info.Description,
			Enabled: &enabled, Disabled: &disabled, Default: info.Enabled,
		}
	}

	fs.AddFlagGroup("Warning Flags", "Enable or disable specific warnings", "warning flag", "Available Warning Flags:", warningFlags)
	fs.AddFlagGroup("Feature Flags", "Enable or disable specific features", "feature flag", "Available feature flags:", featureFlags)
	return warningFlags, featureFlags
}

// ApplyFlagGroups copies the switches parsed into the entries returned by
// SetupFlagGroups back into c.
func (c *Config) ApplyFlagGroups(warningFlags, featureFlags []cli.FlagGroupEntry) {
	for i, entry := range warningFlags {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetWarning(Warning(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetWarning(Warning(i), false)
		}
	}
	for i, entry := range featureFlags {
		if entry.Enabled != nil && *entry.Enabled {
			c.SetFeature(Feature(i), true)
		}
		if entry.Disabled != nil && *entry.Disabled {
			c.SetFeature(Feature(i), false)
		}
	}
}
