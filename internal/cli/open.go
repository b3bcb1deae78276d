package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/harun/hwdesk/pkg/routing"
	"github.com/spf13/cobra"
)

var openRoutes bool

var openCmd = &cobra.Command{
	Use:   "open [path]",
	Short: "Run the route guard for a page",
	Long: `Navigate to a client page such as /classes or /assignment/HW001 and show
where the route guard sends you. With --routes the route table is listed
instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runOpen),
}

func init() {
	openCmd.Flags().BoolVar(&openRoutes, "routes", false, "list the route table")
	rootCmd.AddCommand(openCmd)
}

// openResult is the --json form of `open`
type openResult struct {
	Target   string                    `json:"target"`
	Action   routing.Action            `json:"action"`
	Location string                    `json:"location"`
	Route    string                    `json:"route,omitempty"`
	Params   map[string]string         `json:"params,omitempty"`
	Notice   string                    `json:"notice,omitempty"`
	Stats    []routing.RouteStatistics `json:"stats,omitempty"`
}

func runOpen(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if openRoutes || len(args) == 0 {
		routes := a.nav.Guard().Table().Routes()
		return render(out, routes, func() error {
			rows := make([][]string, 0, len(routes))
			for _, r := range routes {
				access := "public"
				switch {
				case r.Redirect != "":
					access = "→ " + r.Redirect
				case r.Meta.RequiresAuth:
					access = "login"
				case r.Meta.RequiresGuest:
					access = "guest"
				}
				rows = append(rows, []string{r.Pattern, r.Name, access, orDash(r.Meta.Title)})
			}
			return printTable(out, []string{"PATTERN", "NAME", "ACCESS", "TITLE"}, rows)
		})
	}

	target := args[0]
	d, loc := a.nav.Navigate(ctx, target)
	res := openResult{
		Target:   target,
		Action:   d.Action,
		Location: loc.Path,
		Route:    loc.Route.Name,
		Params:   loc.Params,
		Notice:   loc.Notice,
		Stats:    a.nav.Statistics().All(),
	}

	if err := render(out, res, func() error {
		switch d.Action {
		case routing.ActionAllow:
			fmt.Fprintf(out, "Opened %s (%s)\n", loc.Path, loc.Route.Name)
		case routing.ActionNotFound:
			fmt.Fprintf(out, "No page at %s\n", target)
		default:
			fmt.Fprintf(out, "Redirected from %s to %s\n", target, loc.Path)
		}
		if res.Notice != "" {
			fmt.Fprintln(out, res.Notice)
		}
		keys := make([]string, 0, len(loc.Params))
		for k := range loc.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, loc.Params[k])
		}
		return nil
	}); err != nil {
		return err
	}

	if d.Action == routing.ActionNotFound {
		return fmt.Errorf("no such page: %s", target)
	}
	return nil
}
