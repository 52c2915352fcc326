package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/foomo/annotationserver/pkg/annotation"
	"github.com/foomo/annotationserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func NewGetCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "get <item>",
		Short: "Print the record of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, s, err := newStore(cmd.Context(), v, zap.L())
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, s.Close())
			}()

			if err := annotation.ValidateKey(args[0]); err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(loadResponse(args[0], store.Load(cmd.Context(), args[0])))
		},
	}

	addStorageFlags(cmd.Flags(), v)

	return cmd
}

func NewSetCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "set <item>",
		Short: "Replace the record of an item",
		Long:  "Replace the record of an item. The current image is kept unless a new one is given or --drop-image is set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			key := args[0]
			text, _ := cmd.Flags().GetString("text")
			imagePath, _ := cmd.Flags().GetString("image")
			imageType, _ := cmd.Flags().GetString("image-type")
			dropImage, _ := cmd.Flags().GetBool("drop-image")

			store, s, err := newStore(ctx, v, zap.L())
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, s.Close())
			}()

			var upload *annotation.Upload
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return errors.Wrap(err, "failed to read image")
				}
				upload = &annotation.Upload{
					Name:        filepath.Base(imagePath),
					ContentType: imageType,
					Data:        data,
				}
			}

			var previousImage string
			if !dropImage {
				current := store.Load(ctx, key)
				if current.Status == annotation.StatusCorrupt || current.Status == annotation.StatusFailed {
					zap.L().Warn("current record is unusable, saving without its image",
						zap.String("item", key),
						zap.String("status", string(current.Status)),
					)
				}
				previousImage = current.Record.Image
			}

			record, err := store.Save(ctx, key, text, upload, previousImage)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(responses.Save{
				Item:   key,
				Record: responses.Record{Text: record.Text, Image: record.Image},
			})
		},
	}

	flags := cmd.Flags()
	flags.String("text", "", "Note text, stored verbatim")
	flags.String("image", "", "Path of a new image file")
	flags.String("image-type", "", "Content type of the new image, detected when empty")
	flags.Bool("drop-image", false, "Remove the current image")
	addStorageFlags(flags, v)

	return cmd
}

func NewListCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all items with a record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, s, err := newStore(cmd.Context(), v, zap.L())
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, s.Close())
			}()

			keys, err := store.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}

	addStorageFlags(cmd.Flags(), v)

	return cmd
}

func NewExportCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all records as json lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, s, err := newStore(cmd.Context(), v, zap.L())
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, s.Close())
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return store.Export(cmd.Context(), func(key string, res annotation.Result) error {
				return enc.Encode(loadResponse(key, res))
			})
		},
	}

	addStorageFlags(cmd.Flags(), v)

	return cmd
}

func loadResponse(key string, res annotation.Result) responses.Load {
	reply := responses.Load{
		Item:   key,
		Status: string(res.Status),
		Record: responses.Record{Text: res.Record.Text, Image: res.Record.Image},
	}
	if res.Err != nil {
		reply.Error = res.Err.Error()
	}
	return reply
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
