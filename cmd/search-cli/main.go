// Command search-cli is an interactive REPL for exercising an engine
// instance from a terminal: a line-oriented command loop reading JSON
// arguments from stdin rather than a MongoDB-shell-style syntax, since
// this domain's queries and documents are both already JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mnohosten/laura-search/pkg/engine"
	"github.com/mnohosten/laura-search/pkg/indexsvc"
	"github.com/mnohosten/laura-search/pkg/kv/badgerstore"
	"github.com/mnohosten/laura-search/pkg/kv/memstore"
	"github.com/mnohosten/laura-search/pkg/logging"
	"github.com/mnohosten/laura-search/pkg/queryeval"
)

const (
	version = "0.1.0"
	banner  = `
search-cli %s — type 'help' for commands, 'exit' to quit

`
)

type cli struct {
	eng     *engine.Engine
	current string
	scanner *bufio.Scanner
}

func main() {
	dataDir := "./search-data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	ctx := context.Background()
	store, err := badgerstore.Open(dataDir, nil)
	var eng *engine.Engine
	if err != nil {
		fmt.Fprintf(os.Stderr, "falling back to in-memory storage: %v\n", err)
		eng, err = engine.New(ctx, engine.Options{Store: memstore.New()})
	} else {
		eng, err = engine.New(ctx, engine.Options{Store: store})
	}
	if err != nil {
		logging.Fatal("Failed to create engine: %v", err)
	}
	defer eng.Close()

	c := &cli{eng: eng, scanner: bufio.NewScanner(os.Stdin)}
	if err := c.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context) error {
	fmt.Printf(banner, version)

	for {
		prompt := "search> "
		if c.current != "" {
			prompt = fmt.Sprintf("search:%s> ", c.current)
		}
		fmt.Print(prompt)

		if !c.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}

		if err := c.execute(ctx, line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("bye")
				return nil
			}
			fmt.Printf("error: %v\n", err)
		}
	}
	return c.scanner.Err()
}

func (c *cli) execute(ctx context.Context, line string) error {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToLower(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "help", "?":
		return c.help()
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "use":
		c.current = rest
		fmt.Printf("using index %q\n", c.current)
		return nil
	case "create-index":
		return c.createIndex(ctx, rest)
	case "get-index":
		return c.getIndex(ctx, rest)
	case "delete-index":
		return c.deleteIndex(ctx, rest)
	case "index":
		return c.indexDoc(ctx, rest)
	case "get":
		return c.getDoc(ctx, rest)
	case "delete":
		return c.deleteDoc(ctx, rest)
	case "search":
		return c.search(ctx, rest)
	case "suggest":
		return c.suggest(ctx, rest)
	default:
		return fmt.Errorf("unknown command: %s (type 'help')", cmd)
	}
}

func (c *cli) help() error {
	fmt.Print(`
Commands:
  use <index>                         Select the default index
  create-index <name> <mappings-json> Create an index, e.g. create-index books {"title":{"type":"text"}}
  get-index <name>                    Show index metadata
  delete-index <name>                 Delete an index and its documents
  index <id-or--> <source-json>       Index a document ('-' auto-assigns an id)
  get <id>                            Fetch a document from the current index
  delete <id>                         Delete a document
  search <query-json>                 Run a query, e.g. search {"match":{"value":"castle"}}
  suggest <field> <prefix>            Prefix-complete against the current index
  exit                                Quit

`)
	return nil
}

func (c *cli) requireIndex() (string, error) {
	if c.current == "" {
		return "", fmt.Errorf("no index selected (use 'use <index>' first)")
	}
	return c.current, nil
}

func (c *cli) createIndex(ctx context.Context, rest string) error {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return fmt.Errorf("usage: create-index <name> [mappings-json]")
	}
	name := fields[0]

	mappings := map[string]indexsvc.FieldMapping{}
	if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
		var raw map[string]struct {
			Type     string  `json:"type"`
			Analyzer string  `json:"analyzer"`
			Boost    float64 `json:"boost"`
		}
		if err := json.Unmarshal([]byte(fields[1]), &raw); err != nil {
			return fmt.Errorf("invalid mappings JSON: %w", err)
		}
		for field, m := range raw {
			mappings[field] = indexsvc.FieldMapping{
				Type:     indexsvc.FieldType(m.Type),
				Analyzer: m.Analyzer,
				Boost:    m.Boost,
			}
		}
	}

	idx, err := c.eng.CreateIndex(ctx, name, indexsvc.Settings{}, mappings)
	if err != nil {
		return err
	}
	fmt.Printf("created index %q with %d mapped field(s)\n", idx.Name, len(idx.Mappings))
	return nil
}

func (c *cli) getIndex(ctx context.Context, name string) error {
	if name == "" {
		var err error
		name, err = c.requireIndex()
		if err != nil {
			return err
		}
	}
	idx, err := c.eng.GetIndex(ctx, name)
	if err != nil {
		return err
	}
	return printJSON(idx)
}

func (c *cli) deleteIndex(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("usage: delete-index <name>")
	}
	if err := c.eng.DeleteIndex(ctx, name); err != nil {
		return err
	}
	if c.current == name {
		c.current = ""
	}
	fmt.Printf("deleted index %q\n", name)
	return nil
}

func (c *cli) indexDoc(ctx context.Context, rest string) error {
	index, err := c.requireIndex()
	if err != nil {
		return err
	}
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 {
		return fmt.Errorf("usage: index <id-or--> <source-json>")
	}
	id := parts[0]
	if id == "-" {
		id = ""
	}
	var source map[string]interface{}
	if err := json.Unmarshal([]byte(parts[1]), &source); err != nil {
		return fmt.Errorf("invalid source JSON: %w", err)
	}

	result, err := c.eng.IndexDocument(ctx, index, id, source)
	if err != nil {
		return err
	}
	fmt.Printf("%s document %q (version %d)\n", result.Result, result.ID, result.Version)
	return nil
}

func (c *cli) getDoc(ctx context.Context, id string) error {
	index, err := c.requireIndex()
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("usage: get <id>")
	}
	rec, err := c.eng.GetDocument(ctx, index, id)
	if err != nil {
		return err
	}
	return printJSON(rec.Source)
}

func (c *cli) deleteDoc(ctx context.Context, id string) error {
	index, err := c.requireIndex()
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("usage: delete <id>")
	}
	if err := c.eng.DeleteDocument(ctx, index, id); err != nil {
		return err
	}
	fmt.Printf("deleted document %q\n", id)
	return nil
}

// queryJSON mirrors queryeval.Query's shape so search input reads as
// plain JSON instead of requiring callers to nest Go struct names.
type queryJSON struct {
	Match *queryeval.MatchQuery    `json:"match,omitempty"`
	Term  *queryeval.TermQuery     `json:"term,omitempty"`
	All   *queryeval.MatchAllQuery `json:"match_all,omitempty"`
}

func (c *cli) search(ctx context.Context, rest string) error {
	index, err := c.requireIndex()
	if err != nil {
		return err
	}
	if rest == "" {
		return fmt.Errorf("usage: search <query-json>")
	}
	var qj queryJSON
	if err := json.Unmarshal([]byte(rest), &qj); err != nil {
		return fmt.Errorf("invalid query JSON: %w", err)
	}
	q := queryeval.Query{Match: qj.Match, Term: qj.Term, MatchAll: qj.All}
	if q.Match == nil && q.Term == nil && q.MatchAll == nil {
		q.MatchAll = &queryeval.MatchAllQuery{}
	}

	result, err := c.eng.Search(ctx, index, q, engine.SearchOptions{Size: 10, TypoTolerant: true})
	if err != nil {
		return err
	}
	fmt.Printf("%d hit(s) (took %dms)\n", result.Total, result.TookMs)
	for i, hit := range result.Hits {
		fmt.Printf("[%d] %s (score %.3f)\n", i+1, hit.ID, hit.Score)
	}
	for _, s := range result.Suggestions {
		fmt.Printf("did you mean %q? (edit distance %d)\n", s.Text, s.EditDistance)
	}
	return nil
}

func (c *cli) suggest(ctx context.Context, rest string) error {
	index, err := c.requireIndex()
	if err != nil {
		return err
	}
	parts := strings.Fields(rest)
	if len(parts) != 2 {
		return fmt.Errorf("usage: suggest <field> <prefix>")
	}
	suggestions, err := c.eng.Suggest(ctx, index, parts[0], parts[1], 10)
	if err != nil {
		return err
	}
	for i, s := range suggestions {
		fmt.Printf("[%d] %s (df=%d)\n", i+1, s.Text, s.Frequency)
	}
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
