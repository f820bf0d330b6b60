// Package command implements the akapi command line.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	akapi "github.com/mcavalletto/actionkit-api-fetch"
)

// CSRFTokenEnv holds the CSRF token for mutating calls.
const CSRFTokenEnv = "AKAPI_CSRF_TOKEN"

// Main runs the CLI with the given arguments and returns the exit code.
func Main(args []string) int {
	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	return Run(args, ui, os.Getenv)
}

// Run is Main with injectable UI and environment.
func Run(args []string, ui cli.Ui, getenv func(string) string) int {
	cliName := "akapi"
	if len(args) > 0 {
		cliName = args[0]
		args = args[1:]
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:   cliName,
		Output: uiWriter{ui},
	})

	base := &Base{UI: ui, Log: log, Getenv: getenv}

	c := &cli.CLI{
		Name:     cliName,
		Args:     args,
		Version:  akapi.GetVersion(),
		Commands: Commands(base),
	}

	exitCode, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return exitCode
}

// Commands maps subcommand names to factories.
func Commands(base *Base) map[string]cli.CommandFactory {
	factory := func(m akapi.Method) cli.CommandFactory {
		return func() (cli.Command, error) {
			return &FetchCommand{Base: base, Method: m}, nil
		}
	}
	return map[string]cli.CommandFactory{
		"get":    factory(akapi.MethodGet),
		"post":   factory(akapi.MethodPost),
		"put":    factory(akapi.MethodPut),
		"patch":  factory(akapi.MethodPatch),
		"delete": factory(akapi.MethodDelete),
	}
}

// Base is shared by all commands.
type Base struct {
	UI     cli.Ui
	Log    hclog.Logger
	Getenv func(string) string

	// ClientOptions are appended when building the client; tests use it
	// to inject a transport.
	ClientOptions []akapi.Option
}

// uiWriter sends log output to the UI error stream.
type uiWriter struct{ ui cli.Ui }

func (w uiWriter) Write(p []byte) (int, error) {
	w.ui.Error(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// uiNotifier shows failure alerts on the UI.
type uiNotifier struct{ ui cli.Ui }

func (n uiNotifier) Notify(message string) {
	n.ui.Error(message)
}

type fieldFlags map[string]any

func (f fieldFlags) String() string { return fmt.Sprint(map[string]any(f)) }

func (f fieldFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	switch existing := f[k].(type) {
	case nil:
		f[k] = v
	case string:
		f[k] = []string{existing, v}
	case []string:
		f[k] = append(existing, v)
	}
	return nil
}

// FetchCommand sends one call with a fixed method.
type FetchCommand struct {
	*Base
	Method akapi.Method

	flagConfig      string
	flagBaseURL     string
	flagCache       bool
	flagContent     string
	flagReceive     string
	flagRaw         string
	flagAllowWrites bool
	flagVerbose     bool
	flagQuiet       bool
	flagFields      fieldFlags
}

func (c *FetchCommand) name() string {
	return strings.ToLower(string(c.Method))
}

func (c *FetchCommand) Synopsis() string {
	return fmt.Sprintf("Send a %s request to the ActionKit API", c.Method)
}

func (c *FetchCommand) Help() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Usage: akapi %s [options] path

  Sends a %s request to path, relative to /rest/v1/ unless it starts
  with / or is a full URL, and prints the result.

  Mutating requests need -allow-writes (or allow_writes in the config)
  and read the CSRF token from %s.

Options:

`, c.name(), c.Method, CSRFTokenEnv)
	f := c.Flags()
	f.SetOutput(&b)
	f.PrintDefaults()
	return b.String()
}

func (c *FetchCommand) Flags() *flag.FlagSet {
	f := flag.NewFlagSet(c.name(), flag.ContinueOnError)
	f.SetOutput(io.Discard)
	c.flagFields = fieldFlags{}
	f.StringVar(&c.flagConfig, "config", "", "Path to HCL configuration file.")
	f.StringVar(&c.flagBaseURL, "base-url", "", "ActionKit instance URL, overrides the config.")
	f.BoolVar(&c.flagCache, "cache", false, "Reuse an identical earlier result.")
	f.StringVar(&c.flagContent, "content", "", "Body encoding: json or urlencoded.")
	f.StringVar(&c.flagReceive, "receive", "", "Result mode: json, html, text, location or status.")
	f.StringVar(&c.flagRaw, "raw", "", "Send this string as the body unchanged.")
	f.BoolVar(&c.flagAllowWrites, "allow-writes", false, "Permit mutating requests.")
	f.BoolVar(&c.flagVerbose, "v", false, "Log request and result payloads.")
	f.BoolVar(&c.flagQuiet, "q", false, "Do not log calls.")
	f.Var(c.flagFields, "d", "Field as key=value; repeat for more fields.")
	return f
}

func (c *FetchCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return cli.RunResultHelp
	}
	if f.NArg() != 1 {
		c.UI.Error("exactly one path argument is required")
		return cli.RunResultHelp
	}
	if c.flagRaw != "" && len(c.flagFields) > 0 {
		c.UI.Error("-raw and -d cannot be combined")
		return 1
	}

	client, err := c.client()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	data := akapi.NoData()
	switch {
	case c.flagRaw != "":
		data = akapi.Raw(c.flagRaw)
	case len(c.flagFields) > 0:
		data = akapi.Fields(c.flagFields)
	}

	result, err := client.Fetch(context.Background(), c.Method, f.Arg(0), data, &akapi.RequestOptions{
		Cache:   c.flagCache,
		Content: akapi.ContentKind(c.flagContent),
		Receive: akapi.ReceiveMode(c.flagReceive),
	})
	if err != nil {
		// With alerting on, the notifier has already shown the failure.
		if !client.Policy().AlertOnFailure() {
			c.UI.Error(err.Error())
		}
		return 1
	}

	out, err := formatResult(result)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(out)
	return 0
}

func (c *FetchCommand) client() (*akapi.Client, error) {
	var opts []akapi.Option
	if c.flagConfig != "" {
		cfg, err := akapi.LoadConfig(c.flagConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, cfg.Options()...)
	} else {
		opts = append(opts, akapi.WithAllowWrites(false))
	}

	if c.flagBaseURL != "" {
		opts = append(opts, akapi.WithBaseURL(c.flagBaseURL))
	}
	if c.flagAllowWrites {
		opts = append(opts, akapi.WithAllowWrites(true))
	}
	switch {
	case c.flagQuiet:
		opts = append(opts, akapi.WithConsoleLogging(akapi.LogSilent))
	case c.flagVerbose:
		opts = append(opts, akapi.WithConsoleLogging(akapi.LogPayloads))
	}

	tokens := akapi.StaticTokens{}
	if token := c.Getenv(CSRFTokenEnv); token != "" {
		tokens[akapi.DefaultCSRFCookie] = token
	}

	opts = append(opts,
		akapi.WithLogger(c.Log),
		akapi.WithNotifier(uiNotifier{c.UI}),
		akapi.WithTokenSource(csrfTokens{tokens}),
	)
	opts = append(opts, c.ClientOptions...)

	client := akapi.New(opts...)
	if !client.IsValid() {
		return nil, client.ValidationError()
	}
	return client, nil
}

// csrfTokens answers any token name with the CSRF token so a custom
// csrf_cookie in the config still finds the environment value.
type csrfTokens struct{ tokens akapi.StaticTokens }

func (t csrfTokens) Token(string) (string, bool) {
	return t.tokens.Token(akapi.DefaultCSRFCookie)
}

func formatResult(r *akapi.Result) (string, error) {
	switch r.Mode {
	case akapi.ReceiveJSON:
		b, err := json.MarshalIndent(r.Value, "", "  ")
		if err != nil {
			return "", fmt.Errorf("format result: %w", err)
		}
		return string(b), nil
	case akapi.ReceiveHTML, akapi.ReceiveText:
		return r.Text, nil
	case akapi.ReceiveLocation:
		if !r.HasLocation {
			return "(no location)", nil
		}
		return r.Location, nil
	case akapi.ReceiveStatus:
		return fmt.Sprint(r.Status), nil
	}
	return "", fmt.Errorf("unexpected result mode %q", r.Mode)
}
