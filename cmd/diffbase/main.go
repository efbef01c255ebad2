package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootFlags holds the persistent flags. Flags override the environment and
// the project file only when set explicitly.
type rootFlags struct {
	configPath      string
	envFile         string
	base            string
	manifestPath    string
	repoDir         string
	databaseURL     string
	metricsTextfile string
	githubRepo      string
	s3Bucket        string
	s3Prefix        string
	s3Region        string
	skipFetch       bool
	offline         bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "diffbase",
		Short: "Resolve the baseline a visual regression run compares against",
		Long: `diffbase turns a diff base specifier (URL, manifest path or git ref) and the
CI environment into a fully-qualified diff base record.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Project config file (default .diffbase.yml)")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	pf.StringVar(&flags.base, "base", "", "Diff base specifier used for the golden base")
	pf.StringVar(&flags.manifestPath, "manifest-path", "", "Default golden manifest path inside a revision")
	pf.StringVar(&flags.repoDir, "repo-dir", "", "Git working tree")
	pf.StringVar(&flags.databaseURL, "database-url", "", "Postgres DSN for the resolution ledger")
	pf.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	pf.StringVar(&flags.githubRepo, "github-repository", "", "GitHub repository (owner/name) for pull request lookups")
	pf.StringVar(&flags.s3Bucket, "s3-bucket", "", "S3 bucket for published diff bases")
	pf.StringVar(&flags.s3Prefix, "s3-prefix", "", "S3 key prefix for published diff bases")
	pf.StringVar(&flags.s3Region, "s3-region", "", "S3 region for published diff bases")
	pf.BoolVar(&flags.skipFetch, "skip-fetch", false, "Never fetch remotes")
	pf.BoolVar(&flags.offline, "offline", false, "Treat the network as unreachable")

	root.AddCommand(newResolveCmd(flags), newServeCmd(flags), newHistoryCmd(flags))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
