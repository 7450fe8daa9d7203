package shell

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/schollz/progressbar/v3"

	"github.com/fastpinball/fastutil/fastboard"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell   *ishell.Shell
	Catalog *fastboard.Catalog

	// Connect claims the serial ports; it is called lazily, the first
	// time a command actually needs the hardware.
	Connect func() (*fastboard.Monitor, error)

	// Fetch downloads the published firmware archive and reports how
	// many files landed on disk.
	Fetch func() (int, error)

	mon *fastboard.Monitor
}

const (
	shellKey = "$shell"
	prompt   = "fast > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&ListCmd,
		&ListExpCmd,
		&ListNetCmd,
		&UpdateExpCmd,
		&UpdateNetCmd,
		&CatalogCmd,
		&FetchCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell.
func New(catalog *fastboard.Catalog, connect func() (*fastboard.Monitor, error), fetch func() (int, error)) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Catalog: catalog,
		Connect: connect,
		Fetch:   fetch,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Monitor connects on first use and keeps the claimed ports for the
// rest of the session.
func (s *Shell) Monitor() (*fastboard.Monitor, error) {
	if s.mon != nil {
		return s.mon, nil
	}
	mon, err := s.Connect()
	if err != nil {
		return nil, err
	}
	s.mon = mon
	return mon, nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer func() {
		if s.mon != nil {
			s.mon.Close()
		}
	}()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Println("FAST board utility. Type \"help\" for commands.")
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// FormatBoard prints a BoardInfo into friendly string for display.
func FormatBoard(b fastboard.BoardInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%s %s v%s", b.Address, b.Name, b.Version)
	if len(b.AvailableVersions) > 0 {
		fmt.Fprintf(&sb, " (on disk: %s)", strings.Join(b.AvailableVersions, ", "))
	}
	return sb.String()
}

// FormatNode prints a NodeInfo into friendly string for display.
func FormatNode(index int, n fastboard.NodeInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%02d: %s v%s", index, n.Name, n.Firmware)
	if len(n.Extra) > 0 {
		fmt.Fprintf(&sb, " [%s]", strings.Join(n.Extra, " "))
	}
	return sb.String()
}

func printJSON(c *ishell.Context, v interface{}) {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

func listExp(c *ishell.Context, s *Shell) {
	mon, err := s.Monitor()
	if err != nil {
		c.Err(err)
		return
	}
	boards, err := mon.ExpBoards()
	if err != nil {
		c.Err(err)
		return
	}
	if s.OutputJSON {
		if boards == nil {
			boards = []fastboard.BoardInfo{}
		}
		printJSON(c, boards)
		return
	}
	if len(boards) == 0 {
		c.Println("No EXP boards found")
		return
	}
	for _, b := range boards {
		c.Println(FormatBoard(b))
	}
}

func listNet(c *ishell.Context, s *Shell) {
	mon, err := s.Monitor()
	if err != nil {
		c.Err(err)
		return
	}
	nodes, err := mon.NetNodes()
	if err != nil {
		c.Err(err)
		return
	}
	if s.OutputJSON {
		printJSON(c, nodes)
		return
	}
	if len(nodes) == 0 {
		c.Println("No NET nodes found")
		return
	}
	indexes := make([]int, 0, len(nodes))
	for i := range nodes {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		c.Println(FormatNode(i, nodes[i]))
	}
}

// selectVersion asks for a firmware version for key, newest first. The
// installed version, when it appears in the catalog, is marked.
func (s *Shell) selectVersion(c *ishell.Context, key, installed string) (string, bool) {
	versions := s.Catalog.Versions(key)
	if len(versions) == 0 {
		c.Err(fmt.Errorf("no firmware on disk for %s, try \"fetch\" first", key))
		return "", false
	}
	// newest first
	items := make([]string, len(versions))
	for n := range versions {
		v := versions[len(versions)-1-n]
		items[n] = v
		if v == installed {
			items[n] += " (installed)"
		}
	}
	if !s.Interactive {
		c.Err(fmt.Errorf("version argument required in non-interactive mode"))
		return "", false
	}
	index := s.Shell.MultiChoice(items, "Which version?")
	if index < 0 {
		return "", false
	}
	return versions[len(versions)-1-index], true
}

func (s *Shell) confirm(c *ishell.Context, what string) bool {
	if !s.Interactive {
		return true
	}
	c.Printf("Flash %s? [y/N] ", what)
	line := strings.TrimSpace(c.ReadLine())
	return strings.EqualFold(line, "y") || strings.EqualFold(line, "yes")
}

// progressBar feeds a byte-count bar from flash progress callbacks.
// The bar is created on the first callback, once the total is known.
func progressBar() fastboard.ProgressFunc {
	var bar *progressbar.ProgressBar
	return func(path string, total, sent int64) {
		if bar == nil {
			bar = progressbar.DefaultBytes(total, filepath.Base(path))
		}
		_ = bar.Set64(sent)
	}
}

func printResult(c *ishell.Context, s *Shell, res fastboard.FlashResult, err error) {
	c.Println()
	if err != nil {
		c.Err(err)
		return
	}
	if s.OutputJSON {
		printJSON(c, res)
		return
	}
	if !res.AckSeen {
		c.Println("warning: no acknowledgement seen before streaming")
	}
	switch res.Outcome {
	case fastboard.Verified:
		c.Printf("OK: %s now reports v%s\n", res.Board, res.Version)
	case fastboard.VersionMismatch:
		c.Printf("version mismatch: %s reports v%s\n", res.Board, res.Version)
	case fastboard.BoardMismatch:
		c.Printf("board mismatch: got reply from %s v%s\n", res.Board, res.Version)
	default:
		c.Printf("could not verify, reply was %q\n", res.Line)
	}
}

var (
	// ListCmd enumerates both buses.
	ListCmd = ishell.Cmd{
		Name:    "list",
		Aliases: []string{"l"},
		Help:    "list boards on both buses",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			listExp(c, s)
			listNet(c, s)
		},
	}

	// ListExpCmd enumerates the EXP bus.
	ListExpCmd = ishell.Cmd{
		Name:    "list-exp",
		Aliases: []string{"le"},
		Help:    "list boards on the EXP bus",
		Func: func(c *ishell.Context) {
			listExp(c, ShellFrom(c))
		},
	}

	// ListNetCmd enumerates the NET bus.
	ListNetCmd = ishell.Cmd{
		Name:    "list-net",
		Aliases: []string{"ln"},
		Help:    "list nodes on the NET bus",
		Func: func(c *ishell.Context) {
			listNet(c, ShellFrom(c))
		},
	}

	// UpdateExpCmd flashes an EXP board.
	UpdateExpCmd = ishell.Cmd{
		Name:    "update-exp",
		Aliases: []string{"update", "flash"},
		Help:    "[ADDRESS [VERSION]] flash an EXP board",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			mon, err := s.Monitor()
			if err != nil {
				c.Err(err)
				return
			}

			var address, version, installed string
			if len(c.Args) >= 1 {
				address = c.Args[0]
			}
			if len(c.Args) >= 2 {
				version = c.Args[1]
			}

			if address == "" {
				boards, err := mon.ExpBoards()
				if err != nil {
					c.Err(err)
					return
				}
				if len(boards) == 0 {
					c.Err(fmt.Errorf("no EXP boards found"))
					return
				}
				if !s.Interactive {
					c.Err(fmt.Errorf("address argument required in non-interactive mode"))
					return
				}
				items := make([]string, len(boards))
				for n, b := range boards {
					items[n] = FormatBoard(b)
				}
				index := s.Shell.MultiChoice(items, "Which board?")
				if index < 0 {
					return
				}
				address = boards[index].Address
				installed = boards[index].Version
			}
			if version == "" {
				boardType, ok := fastboard.BoardTypeForAddress(address)
				if !ok {
					c.Err(&fastboard.UnknownAddressError{Address: address})
					return
				}
				version, ok = s.selectVersion(c, fastboard.CatalogKey(boardType, fastboard.EXP), installed)
				if !ok {
					return
				}
			}
			if !s.confirm(c, fmt.Sprintf("board @%s to v%s", address, version)) {
				c.Println("aborted")
				return
			}
			res, err := mon.UpdateExp(address, version, progressBar())
			printResult(c, s, res, err)
		},
	}

	// UpdateNetCmd flashes the NET controller.
	UpdateNetCmd = ishell.Cmd{
		Name:    "update-net",
		Aliases: []string{"flash-net"},
		Help:    "[VERSION] flash the NET controller",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			mon, err := s.Monitor()
			if err != nil {
				c.Err(err)
				return
			}

			var version string
			if len(c.Args) >= 1 {
				version = c.Args[0]
			}
			if version == "" {
				var ok bool
				version, ok = s.selectVersion(c,
					fastboard.CatalogKey(fastboard.NetControllerBoard, fastboard.NET), "")
				if !ok {
					return
				}
			}
			if !s.confirm(c, fmt.Sprintf("NET controller to v%s", version)) {
				c.Println("aborted")
				return
			}
			res, err := mon.UpdateNet(version, progressBar())
			printResult(c, s, res, err)
		},
	}

	// CatalogCmd prints the firmware available on disk.
	CatalogCmd = ishell.Cmd{
		Name:    "catalog",
		Aliases: []string{"versions"},
		Help:    "list firmware available on disk",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			index := s.Catalog.Index()
			if s.OutputJSON {
				out := make(map[string][]string, len(index))
				for key := range index {
					out[key] = s.Catalog.Versions(key)
				}
				printJSON(c, out)
				return
			}
			if len(index) == 0 {
				c.Println("Catalog is empty, try \"fetch\"")
				return
			}
			keys := make([]string, 0, len(index))
			for key := range index {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				c.Printf("%s: %s\n", key, strings.Join(s.Catalog.Versions(key), ", "))
			}
		},
	}

	// FetchCmd downloads the published firmware archive.
	FetchCmd = ishell.Cmd{
		Name:    "fetch",
		Aliases: []string{"get-latest-firmware", "check-updates"},
		Help:    "download the latest published firmware",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.Fetch == nil {
				c.Err(fmt.Errorf("no fetch source configured"))
				return
			}
			count, err := s.Fetch()
			if err != nil {
				c.Err(err)
				return
			}
			s.Catalog.Refresh()
			c.Printf("fetched %d firmware files\n", count)
		},
	}
)
