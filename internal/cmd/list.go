package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/jslib"
	"github.com/git-pkgs/jslib/internal/output"
)

var (
	listOutdated bool
	listPaths    bool
	listDefines  bool
	listPURL     bool
	listLicense  bool
	listURLs     bool
)

// urlKinds is the order registry URLs are listed in.
var urlKinds = []string{"descriptor", "registry", "download", "purl"}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed libraries",
		Long: `List the libraries installed under the library root.

Examples:
  # List libraries with their defines and paths
  jslib list -d -p

  # List libraries with a newer published version and their licenses
  jslib list --outdated --license`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	cmd.Flags().BoolVarP(&listOutdated, "outdated", "o", false, "Only list libraries with a newer version")
	cmd.Flags().BoolVarP(&listPaths, "paths", "p", false, "Show the path of each library")
	cmd.Flags().BoolVarP(&listDefines, "defines", "d", false, "Show the define of each library")
	cmd.Flags().BoolVar(&listPURL, "purl", false, "Show the package URL of each library")
	cmd.Flags().BoolVarP(&listLicense, "license", "l", false, "Show the license of each library")
	cmd.Flags().BoolVarP(&listURLs, "urls", "u", false, "Show the registry URLs of each library")

	return cmd
}

// listEntry is one line of list output.
type listEntry struct {
	lib     jslib.Library
	newest  string
	purl    string
	license string
	urls    map[string]string
}

func runList(cmd *cobra.Command, args []string) error {
	mod, err := openModule()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var entries []listEntry
	if listOutdated {
		outdated, err := mod.Outdated(ctx)
		if err != nil {
			return err
		}
		for _, o := range outdated {
			entries = append(entries, listEntry{lib: o.Library, newest: o.Newest})
		}
	} else {
		libs, err := mod.Libraries(ctx)
		if err != nil {
			return err
		}
		for _, lib := range libs {
			if lib.Virtual() {
				continue
			}
			entries = append(entries, listEntry{lib: lib})
		}
	}

	for i := range entries {
		if listPURL {
			purl := mod.PackageURL(entries[i].lib)
			if _, err := jslib.ParsePURL(purl); err != nil {
				return fmt.Errorf("package url of %s: %w", entries[i].lib.Name(), err)
			}
			entries[i].purl = purl
		}
		if listLicense {
			desc, err := entries[i].lib.Descriptor(ctx)
			if err != nil {
				return err
			}
			entries[i].license = desc.License
		}
		if listURLs {
			entries[i].urls = mod.URLs(entries[i].lib.Name(), entries[i].lib.Version())
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatEntry(entries[i]))
	}
	return nil
}

// formatEntry renders name-version followed by the requested details.
func formatEntry(e listEntry) string {
	var b strings.Builder
	b.WriteString(output.StyleNoun.Render(e.lib.Name() + "-" + e.lib.Version()))
	if listDefines {
		b.WriteString(" " + output.StyleDim.Render("("+e.lib.Define()+")"))
	}
	if listPaths {
		b.WriteString(" in " + output.StyleDim.Render(e.lib.Path()))
	}
	if e.newest != "" {
		b.WriteString(" -> " + output.StyleNewer.Render(e.newest))
	}
	if e.purl != "" {
		b.WriteString(" " + output.StyleNoun.Render(e.purl))
	}
	if listLicense {
		license := e.license
		if license == "" {
			license = "unknown"
		}
		b.WriteString(" [" + license + "]")
	}
	for _, kind := range urlKinds {
		if u, ok := e.urls[kind]; ok {
			b.WriteString("\n  " + kind + ": " + output.StyleDim.Render(u))
		}
	}
	return b.String()
}
