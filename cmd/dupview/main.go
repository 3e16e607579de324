// Command dupview is a thin CLI front-end over the dupview library,
// grounded on the teacher's cmd/lci/main.go (a urfave/cli/v2 app with
// one subcommand per entry point, errors surfaced on stderr with a
// non-zero exit).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/dupview"
	"github.com/standardbeagle/dupview/internal/backend"
	"github.com/standardbeagle/dupview/internal/config"
	"github.com/standardbeagle/dupview/internal/timefmt"
	"github.com/standardbeagle/dupview/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "dupview",
		Usage:   "inspect a duplicity backup repository",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "print a summary of the repository's chains, snapshots, and volumes",
				ArgsUsage: "<path>",
				Action:    infoCommand,
			},
			{
				Name:   "version",
				Usage:  "print detailed version information",
				Action: versionCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dupview: %v\n", err)
		os.Exit(1)
	}
}

func versionCommand(c *cli.Context) error {
	fmt.Println(version.FullInfo())
	return nil
}

func infoCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("info requires a repository path", 1)
	}

	be, err := backend.NewLocalBackend(path)
	if err != nil {
		return cli.Exit(err, 1)
	}
	cfg, err := config.LoadKDL(path)
	if err != nil {
		return cli.Exit(err, 1)
	}
	repo, err := dupview.OpenWithConfig(be, cfg)
	if err != nil {
		return cli.Exit(err, 1)
	}

	cols := repo.Collections()
	fmt.Printf("%d backup chain(s), %d signature chain(s)\n", len(cols.BackupChains), len(cols.SignatureChains))
	if len(cols.OrphanedSets) > 0 {
		fmt.Printf("%d orphaned set(s)\n", len(cols.OrphanedSets))
	}
	if len(cols.OrphanedSignatures) > 0 {
		fmt.Printf("%d orphaned signature(s)\n", len(cols.OrphanedSignatures))
	}
	if len(cols.Unrecognised) > 0 {
		fmt.Printf("%d unrecognised file(s)\n", len(cols.Unrecognised))
	}
	fmt.Println()

	for _, snap := range repo.Snapshots() {
		kind := "full"
		if snap.IsIncremental() {
			kind = "inc "
		}
		fmt.Printf("  %s  %s  %d volume(s)\n", kind, timefmt.Display(snap.Time()), snap.NumVolumes())
	}

	return nil
}
