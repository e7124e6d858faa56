// Command rar2fs mounts a directory tree containing RAR archives as a
// read-only FUSE filesystem: archive members appear alongside real files,
// decompressed on demand.
package main

import (
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/spf13/cobra"

	"github.com/nunogt/rar2fs/internal/coordinator"
	"github.com/nunogt/rar2fs/internal/recursion"
	"github.com/nunogt/rar2fs/internal/rlog"
)

var (
	sourceDir       string
	configPath      string
	recursionDepth  int
	maxUnpackSizeMB int
	allowOther      bool
	foreground      bool
	verbosity       int
)

func init() {
	flags := rootCommand.Flags()
	flags.StringVarP(&sourceDir, "source", "s", "", "directory containing RAR archives (required)")
	flags.StringVarP(&configPath, "config", "c", "", "not read: the configuration is always loaded from <source>/.rarconfig")
	flags.IntVar(&recursionDepth, "recursion-depth", recursion.DefaultMaxDepth, "max nested-RAR unpack depth (1-10)")
	flags.IntVar(&maxUnpackSizeMB, "max-unpack-size", recursion.DefaultMaxUnpackedSize/(1024*1024), "cumulative nested-unpack budget, in MiB")
	flags.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount")
	flags.BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	flags.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
}

var rootCommand = &cobra.Command{
	Use:   "rar2fs <mountpoint>",
	Short: "Mount RAR archives as a read-only filesystem",
	Long: `
rar2fs exposes the contents of RAR archives found under --source as
ordinary files and directories under <mountpoint>, decompressing members
on demand and transparently descending into nested archives up to
--recursion-depth levels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sourceDir == "" {
			return fmt.Errorf("rar2fs: --source is required")
		}
		rlog.SetLevel(verbosity)
		return runMount(args[0])
	},
}

func runMount(mountpoint string) error {
	coord, err := coordinator.New(coordinator.Options{
		SourceRoot:      sourceDir,
		MaxDepth:        recursionDepth,
		MaxUnpackedSize: int64(maxUnpackSizeMB) * 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("rar2fs: initialize coordinator: %w", err)
	}
	defer coord.Close()

	nodeFs := pathfs.NewPathNodeFs(coordinator.NewFS(coord), nil)
	conn := nodefs.NewFileSystemConnector(nodeFs.Root(), nodefs.NewOptions())
	server, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		AllowOther: allowOther,
		Name:       "rar2fs",
	})
	if err != nil {
		return fmt.Errorf("rar2fs: mount %q: %w", mountpoint, err)
	}

	rlog.Infof(mountpoint, "rar2fs mounted (source=%s, max-depth=%d)", sourceDir, recursionDepth)

	if foreground {
		server.Serve()
		return nil
	}
	go server.Serve()
	server.WaitMount()
	return nil
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
