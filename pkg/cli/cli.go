package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
	Get() any
}

type stringValue struct{ p *string }

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }
func (v *stringValue) Get() any           { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }
func (v *boolValue) Get() any       { return *v.p }

type intValue struct{ p *int }

func (v *intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = n
	return nil
}
func (v *intValue) String() string { return strconv.Itoa(*v.p) }
func (v *intValue) Get() any       { return *v.p }

// countValue is a flag without argument that counts its occurrences, as in -vv.
type countValue struct{ p *int }

func (v *countValue) Set(s string) error {
	if s == "" {
		*v.p++
		return nil
	}
	return (&intValue{v.p}).Set(s)
}
func (v *countValue) String() string { return strconv.Itoa(*v.p) }
func (v *countValue) Get() any       { return *v.p }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }
func (v *listValue) Get() any           { return *v.p }

func takesArgument(v Value) bool {
	switch v.(type) {
	case *boolValue, *countValue:
		return false
	}
	return true
}

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
}

type FlagGroup struct {
	Name                 string
	Description          string
	Flags                []FlagGroupEntry
	GroupType            string
	AvailableFlagsHeader string
}

type FlagGroupEntry struct {
	Name     string
	Prefix   string
	Usage    string
	Enabled  *bool
	Disabled *bool
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	args       []string
	set        []*Flag
	flagGroups []FlagGroup
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, expectedType string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.Itoa(value), expectedType)
}

// Count defines a flag that increments p each time it appears.
func (f *FlagSet) Count(p *int, name, shorthand, usage string) {
	*p = 0
	f.Var(&countValue{p}, name, shorthand, usage, "", "")
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, fmt.Sprintf("%v", value), expectedType)
}

// AddFlagGroup defines <prefix><name> and <prefix>no-<name> for every entry
// and lists them under their own heading in the help page.
func (f *FlagSet) AddFlagGroup(name, description, groupType, availableFlagsHeader string, entries []FlagGroupEntry) {
	for _, e := range entries {
		if e.Enabled != nil {
			f.Bool(e.Enabled, e.Prefix+e.Name, "", *e.Enabled, e.Usage)
		}
		if e.Disabled != nil {
			f.Bool(e.Disabled, e.Prefix+"no-"+e.Name, "", *e.Disabled, "Disable '"+e.Name+"'")
		}
	}
	f.flagGroups = append(f.flagGroups, FlagGroup{
		Name:                 name,
		Description:          description,
		Flags:                entries,
		GroupType:            groupType,
		AvailableFlagsHeader: availableFlagsHeader,
	})
}

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

// Visit calls fn for every flag given on the command line, in order. A flag
// given twice is visited twice.
func (f *FlagSet) Visit(fn func(*Flag)) {
	for _, flag := range f.set {
		fn(flag)
	}
}

func (f *FlagSet) apply(flag *Flag, value string) error {
	if err := flag.Value.Set(value); err != nil {
		return fmt.Errorf("flag %s: %w", flag.Name, err)
	}
	f.set = append(f.set, flag)
	return nil
}

// Parse accepts --name[=value], -name[=value] for multi-letter names such as
// -Wall, and -x[value] for shorthands. Shorthand bools and counters combine:
// -vv.
func (f *FlagSet) Parse(arguments []string) error {
	f.args, f.set = nil, nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}

		body := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		name, value, hasValue := strings.Cut(body, "=")
		if flag, ok := f.flags[name]; ok && (strings.HasPrefix(arg, "--") || len(name) > 1) {
			if !hasValue && takesArgument(flag.Value) {
				if i+1 >= len(arguments) {
					return fmt.Errorf("flag needs an argument: %s", arg)
				}
				i++
				value = arguments[i]
			}
			if err := f.apply(flag, value); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(arg, "--") {
			return fmt.Errorf("unknown flag: --%s", name)
		}
		if err := f.parseShort(arg[1:], arguments, &i); err != nil {
			return err
		}
	}
	return nil
}

func (f *FlagSet) parseShort(body string, arguments []string, i *int) error {
	for len(body) > 0 {
		flag, ok := f.shorthands[body[:1]]
		if !ok {
			return fmt.Errorf("unknown shorthand flag: -%s", body[:1])
		}
		body = body[1:]
		if !takesArgument(flag.Value) {
			if err := f.apply(flag, ""); err != nil {
				return err
			}
			continue
		}
		value := strings.TrimPrefix(body, "=")
		if value == "" {
			if *i+1 >= len(arguments) {
				return fmt.Errorf("flag needs an argument: -%s", flag.Shorthand)
			}
			*i++
			value = arguments[*i]
		}
		return f.apply(flag, value)
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	Since       int
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		a.Usage(a.Stderr)
		return err
	}
	if help {
		a.Help(a.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

const indentUnit = "    "

func indent(level int) string { return strings.Repeat(indentUnit, level) }

// Usage writes the short usage page.
func (a *App) Usage(w io.Writer) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if opts := a.optionFlags(); len(opts) > 0 {
		l := a.newLayout()
		fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
		for _, flag := range opts {
			l.flagLine(&sb, flag)
		}
	}
	fmt.Fprintf(&sb, "\nRun '%s --help' for all available options and flags.\n", a.Name)
	fmt.Fprint(w, sb.String())
}

// Help writes the full help page, flag groups included.
func (a *App) Help(w io.Writer) {
	var sb strings.Builder
	l := a.newLayout()

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n%sCopyright (c) %d: %s and contributors\n", indent(1), a.Since, strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent(1), a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indent(1), indent(2), a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indent(1))
		for _, line := range wrapText(a.Description, l.termWidth-len(indent(2))) {
			fmt.Fprintf(&sb, "%s%s\n", indent(2), line)
		}
	}
	if opts := a.optionFlags(); len(opts) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
		for _, flag := range opts {
			l.flagLine(&sb, flag)
		}
	}

	groups := append([]FlagGroup(nil), a.FlagSet.flagGroups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	for _, g := range groups {
		l.group(&sb, g)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	var out []*Flag
	for _, flag := range a.FlagSet.flags {
		if !a.isGroupFlag(flag.Name) {
			out = append(out, flag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (a *App) isGroupFlag(name string) bool {
	for _, g := range a.FlagSet.flagGroups {
		if len(g.Flags) > 0 && strings.HasPrefix(name, g.Flags[0].Prefix) {
			rest := strings.TrimPrefix(strings.TrimPrefix(name, g.Flags[0].Prefix), "no-")
			if rest == "all" {
				return true
			}
			for _, e := range g.Flags {
				if rest == e.Name {
					return true
				}
			}
		}
	}
	return false
}

// layout aligns the left column of every entry on the page.
type layout struct {
	termWidth int
	left      int
	usage     int
}

func (a *App) newLayout() *layout {
	l := &layout{termWidth: getTerminalWidth()}
	for _, flag := range a.optionFlags() {
		l.left = max(l.left, len(formatFlagString(flag)))
		l.usage = max(l.usage, len(flag.Usage))
	}
	for _, g := range a.FlagSet.flagGroups {
		if len(g.Flags) == 0 {
			continue
		}
		l.left = max(l.left, len(fmt.Sprintf("-%sno-<%s>", g.Flags[0].Prefix, g.GroupType)))
		for _, e := range g.Flags {
			l.left = max(l.left, len(e.Name))
			l.usage = max(l.usage, len(e.Usage))
		}
	}
	return l
}

func formatFlagString(flag *Flag) string {
	arg := ""
	if takesArgument(flag.Value) && flag.ExpectedType != "" {
		arg = " <" + flag.ExpectedType + ">"
	}
	dashes := "--"
	if len(flag.Name) > 1 && flag.Name[0] >= 'A' && flag.Name[0] <= 'Z' {
		dashes = "-"
	}
	if flag.Shorthand != "" {
		return fmt.Sprintf("-%s%s, %s%s%s", flag.Shorthand, arg, dashes, flag.Name, arg)
	}
	return dashes + flag.Name + arg
}

func (l *layout) entry(sb *strings.Builder, left, usage, right string) {
	prefix := indent(2)
	width := l.termWidth - len(prefix) - l.left - 1 - len(right) - 2
	lines := wrapText(usage, max(width, 10))
	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", prefix, l.left, left, min(l.usage, max(width, 10)), first, right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", prefix, l.left, left, first)
	}
	for _, line := range lines[min(1, len(lines)):] {
		fmt.Fprintf(sb, "%s%s %s\n", prefix, strings.Repeat(" ", l.left), line)
	}
}

func (l *layout) flagLine(sb *strings.Builder, flag *Flag) {
	right := ""
	if takesArgument(flag.Value) && flag.DefValue != "" && flag.DefValue != "[]" {
		right = "|" + flag.DefValue + "|"
	}
	l.entry(sb, formatFlagString(flag), flag.Usage, right)
}

func (l *layout) group(sb *strings.Builder, g FlagGroup) {
	if len(g.Flags) == 0 {
		return
	}
	prefix := g.Flags[0].Prefix
	kind := g.GroupType
	if kind == "" {
		kind = "flag"
	}
	fmt.Fprintf(sb, "\n%s%s\n", indent(1), g.Name)
	if g.Description != "" {
		fmt.Fprintf(sb, "%s%s\n", indent(2), g.Description)
	}
	fmt.Fprintf(sb, "%s%-*s Enable a specific %s\n", indent(2), l.left, fmt.Sprintf("-%s<%s>", prefix, kind), kind)
	fmt.Fprintf(sb, "%s%-*s Disable a specific %s\n", indent(2), l.left, fmt.Sprintf("-%sno-<%s>", prefix, kind), kind)
	if g.AvailableFlagsHeader != "" {
		fmt.Fprintf(sb, "%s%s\n", indent(1), g.AvailableFlagsHeader)
	}

	entries := append([]FlagGroupEntry(nil), g.Flags...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	for _, e := range entries {
		state := "|-|"
		if e.Enabled != nil && *e.Enabled && (e.Disabled == nil || !*e.Disabled) {
			state = "|x|"
		}
		l.entry(sb, e.Name, e.Usage, state)
	}
}

func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if maxWidth <= 0 || len(words) == 0 {
		return words
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
