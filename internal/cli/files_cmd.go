// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// files_cmd.go - File library and attachment commands.
//
// Commands:
//
//	docchat files [--attached]              List the library or the current chat's files
//	docchat upload <path>... [--attach]     Upload files into the library
//	docchat attach <file-id> [--new|--latest]
//	docchat detach <file-id>                Remove a file from the current chat
//	docchat link <file-id>                  Print a download link
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/model"
)

// fileEntry is the JSON form of a file in listings.
type fileEntry struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Attached  bool      `json:"attached"`
}

// fileLinker is implemented by backends that can hand out download links.
type fileLinker interface {
	FileURL(ctx context.Context, fileID int64) (string, error)
}

func (a *App) filesCmd() *cobra.Command {
	var attachedOnly bool
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List the file library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := a.engine.Store().View()
			attached := model.FileIDs(view.Attachments)

			files := view.Library
			if attachedOnly {
				if _, err := a.requireChat(); err != nil {
					return err
				}
				files = view.Attachments
			}

			if a.jsonOutput {
				entries := make([]fileEntry, len(files))
				for i, f := range files {
					entries[i] = fileEntry{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt, Attached: slices.Contains(attached, f.ID)}
				}
				return a.writeJSON("files", entries)
			}

			if len(files) == 0 {
				fmt.Fprintln(a.out, DimStyle.Render("No files."))
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(a.out, formatFileLine(f, slices.Contains(attached, f.ID), a.printer.Width()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&attachedOnly, "attached", false, "only files attached to the current chat")
	return cmd
}

// formatFileLine renders one row of a file listing, truncating long names
// to the output width.
func formatFileLine(f model.File, attached bool, width int) string {
	marker := "  "
	if attached {
		marker = HighlightStyle.Render("+ ")
	}
	id := fmt.Sprintf("%6d", f.ID)
	name := runewidth.Truncate(f.Name, max(width-len(id)-4, 10), "...")
	return marker + DimStyle.Render(id) + "  " + name
}

func (a *App) uploadCmd() *cobra.Command {
	var attach bool
	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var uploaded []fileEntry
			for _, path := range args {
				f, err := a.uploadPath(cmd.Context(), path, attach)
				if err != nil {
					return err
				}
				uploaded = append(uploaded, fileEntry{ID: f.ID, Name: f.Name, CreatedAt: f.CreatedAt, Attached: attach})
			}
			if a.jsonOutput {
				return a.writeJSON("upload", uploaded)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&attach, "attach", false, "also attach to the current chat")
	return cmd
}

// uploadPath uploads one local file.
func (a *App) uploadPath(ctx context.Context, path string, attach bool) (model.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.File{}, &CommandError{Command: "upload", Reason: "cannot open " + path, Err: err}
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.IsDir() {
		return model.File{}, &UsageError{Arg: "path", Reason: path + " is a directory"}
	}
	return a.engine.UploadFile(ctx, path, f, attach)
}

func (a *App) attachCmd() *cobra.Command {
	var toNew, toLatest bool
	cmd := &cobra.Command{
		Use:   "attach <file-id>",
		Short: "Attach a library file to a chat",
		Long: `Attach a library file to the current chat. With --new a chat is created
for the file and opened; with --latest the file goes to the most recently
used chat.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if toNew && toLatest {
				return &UsageError{Arg: "flags", Reason: "--new and --latest are mutually exclusive"}
			}
			fileID, err := parseID("file-id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var target model.Chat
			switch {
			case toNew:
				target, err = a.engine.AttachToNewChat(ctx, fileID)
			case toLatest:
				target, err = a.engine.AttachToLatestChat(ctx, fileID)
			default:
				err = a.engine.AttachToActiveChat(ctx, fileID)
				if err == nil {
					target, _ = a.engine.Store().Chat(a.engine.Store().SelectedChatID())
				}
			}
			if err != nil {
				return err
			}

			if a.jsonOutput {
				return a.writeJSON("attach", chatEntry{ID: target.ID, Title: target.GetTitle(), CreatedAt: target.CreatedAt})
			}
			fmt.Fprintf(a.out, "%s file %d to chat %d (%s)\n", SuccessStyle.Render("Attached"), fileID, target.ID, target.GetTitle())
			return nil
		},
	}
	cmd.Flags().BoolVar(&toNew, "new", false, "attach to a new chat and open it")
	cmd.Flags().BoolVar(&toLatest, "latest", false, "attach to the most recently used chat")
	return cmd
}

func (a *App) detachCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "detach <file-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a file from the current chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID("file-id", args[0])
			if err != nil {
				return err
			}
			if err := a.engine.RemoveFile(cmd.Context(), fileID); err != nil {
				return err
			}
			if a.jsonOutput {
				return a.writeJSON("detach", map[string]int64{"file_id": fileID})
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Detached"), "file", fileID)
			return nil
		},
	}
}

func (a *App) linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <file-id>",
		Short: "Print a temporary download link for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID, err := parseID("file-id", args[0])
			if err != nil {
				return err
			}
			linker, ok := a.backend.(fileLinker)
			if !ok {
				return &CommandError{Command: "link", Reason: "backend does not serve download links"}
			}
			url, err := linker.FileURL(cmd.Context(), fileID)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.writeJSON("link", map[string]string{"url": url})
			}
			fmt.Fprintln(a.out, url)
			return nil
		},
	}
}
