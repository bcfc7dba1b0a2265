package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/m-rots/onedrived"
	"github.com/m-rots/onedrived/task"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func (a *app) drivesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "List the drives of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drives, err := a.root.Drives(cmd.Context())
			if err != nil {
				return err
			}

			registered, err := a.registry.All(cmd.Context())
			if err != nil {
				return err
			}

			for _, drive := range drives {
				info := drive.Info()

				marker := ""
				if r, ok := registered[drive.Key()]; ok {
					marker = fmt.Sprintf(" %s-> %s%s", colourGreen, r.Config().LocalRoot, colourReset)
				}

				fmt.Printf("%s  %-16s %d/%d bytes%s\n", info.ID, info.DriveType, info.Quota.Used, info.Quota.Total, marker)
			}

			return nil
		},
	}
}

func (a *app) registerCommand() *cobra.Command {
	var localRoot string

	cmd := &cobra.Command{
		Use:   "register [drive-id]",
		Short: "Pair a drive with a local directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var drive *onedrived.Drive
			var err error

			switch {
			case len(args) == 1:
				drive, err = a.root.Drive(cmd.Context(), args[0])
			case a.config.Drive.ID != "":
				drive, err = a.root.Drive(cmd.Context(), a.config.Drive.ID)
			default:
				drive, err = a.root.DefaultDrive(cmd.Context())
			}

			if err != nil {
				return err
			}

			if localRoot == "" {
				localRoot = a.config.Drive.LocalRoot
			}

			abs, err := filepath.Abs(localRoot)
			if err != nil {
				return err
			}

			config := drive.Config()
			config.LocalRoot = abs

			if err := drive.SetConfig(config); err != nil {
				return err
			}

			if err := a.registry.Add(drive); err != nil {
				return err
			}

			fmt.Printf("%sregistered%s - %s - %s\n", colourGreen, colourReset, drive.ID(), abs)
			return nil
		},
	}

	cmd.Flags().StringVar(&localRoot, "local-root", "", "local directory (default from configuration)")
	return cmd
}

func (a *app) unregisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <drive-id>",
		Short: "Remove the pairing of a drive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drive, err := a.registered(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if err := a.registry.Delete(drive); err != nil {
				return err
			}

			fmt.Printf("%sunregistered%s - %s\n", colourRed, colourReset, drive.ID())
			return nil
		},
	}
}

func (a *app) syncCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync [remote-folder]",
		Short: "Download new and changed items of a remote folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drive, err := a.registered(cmd.Context(), a.config.Drive.ID)
			if err != nil {
				return err
			}

			parent := "/"
			if len(args) == 1 {
				parent = path.Clean("/" + args[0])
			}

			changed, err := drive.SyncChildren(cmd.Context(), onedrived.ByPath(parent), a.store, printChanges(a))
			if err != nil || dryRun {
				return err
			}

			env := a.env(drive)

			tasks := make([]task.Task, 0, len(changed))
			for _, item := range changed {
				if item.IsFolder() {
					tasks = append(tasks, task.NewMirrorDir(env, parent, item))
				} else {
					tasks = append(tasks, task.NewDownloadFile(env, parent, item))
				}
			}

			return task.NewRunner(a.config.Workers, a.logger).Run(cmd.Context(), tasks...)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only record the items as pending")
	return cmd
}

// printChanges prints the items about to be recorded, compared to the store.
func printChanges(a *app) onedrived.Hook {
	return func(drive *onedrived.Drive, changed []*onedrived.Item) error {
		for _, item := range changed {
			name, _ := item.Name()

			prev, err := a.store.Item(item.ID())
			if err != nil {
				fmt.Printf("%screated%s - %s - %s\n", colourGreen, colourReset, item.ID(), name)
				continue
			}

			output := fmt.Sprintf("%schanged%s - %s - %s\n", colourYellow, colourReset, item.ID(), name)

			eTag, _ := item.ETag()
			size, _ := item.Size()

			output += changedPretty("Name", prev.Name, name)
			output += changedPretty("Size", prev.Size, size)
			output += changedPretty("ETag", prev.ETag, eTag)

			fmt.Print(output)
		}

		return nil
	}
}

func changedPretty(name string, prev interface{}, next interface{}) string {
	if prev != next {
		return fmt.Sprintf("%v: %v -> %v\n", name, prev, next)
	}

	return ""
}

func (a *app) uploadCommand() *cobra.Command {
	var behavior string

	cmd := &cobra.Command{
		Use:   "upload <remote-path>...",
		Short: "Upload local files to the same path on the drive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTasks(cmd.Context(), args, func(env *task.Env, parent, name string) task.Task {
				return task.NewUploadFile(env, parent, name, onedrived.ConflictBehavior(behavior))
			})
		},
	}

	cmd.Flags().StringVar(&behavior, "conflict", string(onedrived.ConflictReplace), "fail, replace or rename")
	return cmd
}

func (a *app) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <remote-path>...",
		Short: "Download files to the same path below the local root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drive, err := a.registered(cmd.Context(), a.config.Drive.ID)
			if err != nil {
				return err
			}

			env := a.env(drive)

			var tasks []task.Task
			for _, arg := range args {
				item, err := drive.Item(cmd.Context(), onedrived.ByPath(arg))
				if err != nil {
					return err
				}

				tasks = append(tasks, task.NewDownloadFile(env, path.Dir(path.Clean("/"+arg)), item))
			}

			return task.NewRunner(a.config.Workers, a.logger).Run(cmd.Context(), tasks...)
		},
	}
}

func (a *app) mkdirCommand() *cobra.Command {
	var behavior string

	cmd := &cobra.Command{
		Use:   "mkdir <remote-path>...",
		Short: "Create folders on the drive and below the local root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTasks(cmd.Context(), args, func(env *task.Env, parent, name string) task.Task {
				return task.NewCreateDir(env, parent, name, onedrived.ConflictBehavior(behavior))
			})
		},
	}

	cmd.Flags().StringVar(&behavior, "conflict", string(onedrived.ConflictFail), "fail, replace or rename")
	return cmd
}

func (a *app) touchCommand() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "touch <remote-path>...",
		Short: "Set the modification time of remote items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modified := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--time: %w", err)
				}
				modified = t
			}

			return a.runTasks(cmd.Context(), args, func(env *task.Env, parent, name string) task.Task {
				return task.NewUpdateMetadata(env, parent, name, modified)
			})
		},
	}

	cmd.Flags().StringVar(&at, "time", "", "modification time in RFC 3339 (default now)")
	return cmd
}

// registered finds a drive of the account in the registry.
// An empty id matches the only registered drive.
func (a *app) registered(ctx context.Context, id string) (*onedrived.Drive, error) {
	drives, err := a.registry.All(ctx)
	if err != nil {
		return nil, err
	}

	var found *onedrived.Drive
	for key, drive := range drives {
		if key.AccountID != a.root.Account().ID() {
			continue
		}

		if id == "" && found != nil {
			return nil, fmt.Errorf("several drives registered, pick one with drive.id")
		}

		if id == "" || key.DriveID == id {
			found = drive
		}
	}

	if found == nil {
		return nil, fmt.Errorf("drive %q is not registered", id)
	}

	return found, nil
}

func (a *app) env(drive *onedrived.Drive) *task.Env {
	return &task.Env{
		Drive:      drive,
		Items:      a.store,
		Fs:         afero.NewOsFs(),
		LocalRoot:  drive.Config().LocalRoot,
		MaxGetSize: drive.Config().MaxGetSize,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
}

func (a *app) runTasks(ctx context.Context, paths []string, newTask func(env *task.Env, parent, name string) task.Task) error {
	drive, err := a.registered(ctx, a.config.Drive.ID)
	if err != nil {
		return err
	}

	env := a.env(drive)
	tasks := make([]task.Task, 0, len(paths))
	for _, p := range paths {
		parent, name := path.Split(path.Clean("/" + p))
		tasks = append(tasks, newTask(env, parent, name))
	}

	return task.NewRunner(a.config.Workers, a.logger).Run(ctx, tasks...)
}
