//go:build linux || darwin || freebsd

package main

import (
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/momentics/hioload-npl/protocol/ftp"
	"github.com/spf13/cobra"
)

// transfer queues a data transfer and waits for its final reply.
func (s *session) transfer(op string, start func(ftp.JobOption) error) error {
	cb, ch := replyChan()
	if err := start(ftp.WithResponse(cb)); err != nil {
		return err
	}
	_, err := s.wait(op, ch)
	return err
}

// command queues a general command and prints its reply text.
func (s *session) command(out io.Writer, op string, start func(func(string)) error) error {
	cb, ch := replyChan()
	if err := start(cb); err != nil {
		return err
	}
	reply, err := s.wait(op, ch)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func newListCommand(g *globalFlags) *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Example: `  nplftp ls -H ftp.example.org /pub
  nplftp ls --names -H ftp.example.org`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			out := cmd.OutOrStdout()
			onData := func(b []byte) bool {
				if b != nil {
					out.Write(b)
				}
				return true
			}
			return run(cmd, g, func(s *session) error {
				return s.transfer("ls", func(opt ftp.JobOption) error {
					if names {
						return s.client.NameList(dir, onData, opt)
					}
					return s.client.ListDirectory(dir, onData, opt)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "list names only (NLST)")
	return cmd
}

func newGetCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := args[0]
			local := path.Base(remote)
			if len(args) > 1 {
				local = args[1]
			}
			return run(cmd, g, func(s *session) error {
				var n int
				err := s.transfer("get", func(opt ftp.JobOption) error {
					return s.client.Download(remote, local, func(b []byte) bool {
						n += len(b)
						return true
					}, opt)
				})
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", remote, local, n)
				}
				return err
			})
		},
	}
}

func newPutCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put <local> [remote]",
		Short: "Upload a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local := args[0]
			remote := filepath.Base(local)
			if len(args) > 1 {
				remote = args[1]
			}
			return run(cmd, g, func(s *session) error {
				var n int
				err := s.transfer("put", func(opt ftp.JobOption) error {
					return s.client.Upload(remote, local, func(b []byte) bool {
						n += len(b)
						return true
					}, opt)
				})
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d bytes)\n", local, remote, n)
				}
				return err
			})
		},
	}
}

func newPwdCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the remote working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(s *session) error {
				return s.command(cmd.OutOrStdout(), "pwd", s.client.GetCurrentDir)
			})
		},
	}
}

// newPathCommand builds the commands taking a single remote path.
func newPathCommand(g *globalFlags, use, short string, op func(*ftp.Client, string, func(string)) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, g, func(s *session) error {
				return s.command(cmd.OutOrStdout(), use, func(cb func(string)) error {
					return op(s.client, args[0], cb)
				})
			})
		},
	}
}

func newMkdirCommand(g *globalFlags) *cobra.Command {
	return newPathCommand(g, "mkdir", "Create a remote directory", (*ftp.Client).CreateDir)
}

func newRmdirCommand(g *globalFlags) *cobra.Command {
	return newPathCommand(g, "rmdir", "Remove a remote directory", (*ftp.Client).RemoveDir)
}

func newRmCommand(g *globalFlags) *cobra.Command {
	return newPathCommand(g, "rm", "Delete a remote file", (*ftp.Client).Delete)
}
