package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dev-tams/sqlbackup/internal/config"
	"github.com/dev-tams/sqlbackup/internal/storage/local"
)

// RunList prints the artifacts in the backup directory, newest first.
func RunList(ctx context.Context, cfg *config.Config, out io.Writer) error {
	st := local.New("local", cfg.Backup.Path, nil)
	artifacts, err := st.List(ctx)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		fmt.Fprintf(out, "no backups in %s\n", cfg.Backup.Path)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED\tAGE")

	var total uint64
	for _, a := range artifacts {
		total += uint64(a.Size)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			a.Name,
			humanize.Bytes(uint64(a.Size)),
			a.ModTime.Format(time.DateTime),
			humanize.Time(a.ModTime),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d backup(s), %s total\n", len(artifacts), humanize.Bytes(total))
	return nil
}
