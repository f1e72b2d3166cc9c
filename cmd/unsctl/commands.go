package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/share"
	"github.com/rorocorp/uns/system"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unsctl",
		Short:         "Local Store API over a direct store/NNTP connection",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newInitUserCmd(),
		newAddFolderCmd(),
		newIndexFolderCmd(),
		newSegmentFolderCmd(),
		newUploadFolderCmd(),
		newPublishFolderCmd(),
		newListFoldersCmd(),
		newGetFolderCmd(),
		newResyncFolderCmd(),
		newDeleteFolderCmd(),
		newDownloadShareCmd(),
	)
	return root
}

func withSystem(fn func(ctx context.Context, sys *system.System) error) error {
	ctx := context.Background()
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	sys, err := newSystem(ctx, log)
	if err != nil {
		return err
	}
	defer sys.Close()

	return fn(ctx, sys)
}

func newInitUserCmd() *cobra.Command {
	var displayName string
	cmd := &cobra.Command{
		Use:   "init-user",
		Short: "Create a new user identity (spec: initialize_user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				userID, sk, err := sys.InitializeUser(ctx, displayName)
				if err != nil {
					return err
				}
				fmt.Printf("user_id: %s\nprivate_key: %s\n", userID, base64.StdEncoding.EncodeToString(sk))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.MarkFlagRequired("display-name")
	return cmd
}

func newAddFolderCmd() *cobra.Command {
	var ownerID, path string
	var packing bool
	cmd := &cobra.Command{
		Use:   "add-folder",
		Short: "Register a new folder (spec: add_folder)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				folderUniqueID, err := sys.AddFolder(ctx, ownerID, path, packing)
				if err != nil {
					return err
				}
				fmt.Println(folderUniqueID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner user_id")
	cmd.Flags().StringVar(&path, "path", "", "root path")
	cmd.Flags().BoolVar(&packing, "packing", false, "enable small-file packing")
	cmd.MarkFlagRequired("owner-id")
	cmd.MarkFlagRequired("path")
	return cmd
}

func newIndexFolderCmd() *cobra.Command {
	return folderIDCmd("index-folder", "Index a folder's files (spec: index_folder)", func(ctx context.Context, sys *system.System, folderUniqueID string) error {
		filesIndexed, totalSize, err := sys.IndexFolder(ctx, folderUniqueID)
		if err != nil {
			return err
		}
		fmt.Printf("files_indexed: %d\ntotal_size: %d\n", filesIndexed, totalSize)
		return nil
	})
}

func newSegmentFolderCmd() *cobra.Command {
	return folderIDCmd("segment-folder", "Segment and encrypt an indexed folder (spec: segment_folder)", func(ctx context.Context, sys *system.System, folderUniqueID string) error {
		segmentsCreated, err := sys.SegmentFolder(ctx, folderUniqueID)
		if err != nil {
			return err
		}
		fmt.Printf("segments_created: %d\n", segmentsCreated)
		return nil
	})
}

func newUploadFolderCmd() *cobra.Command {
	return folderIDCmd("upload-folder", "Upload a segmented folder's backlog (spec: upload_folder)", func(ctx context.Context, sys *system.System, folderUniqueID string) error {
		result, err := sys.UploadFolder(ctx, folderUniqueID)
		if err != nil {
			return err
		}
		fmt.Printf("completed: %d\nfailed: %d\n", result.Completed, len(result.Failed))
		return nil
	})
}

func newPublishFolderCmd() *cobra.Command {
	var accessType, password string
	cmd := &cobra.Command{
		Use:   "publish-folder [folder_unique_id]",
		Short: "Publish an uploaded folder as a share (spec: publish_folder)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				in, err := parseAccessType(accessType, password)
				if err != nil {
					return err
				}
				shareID, err := sys.PublishFolder(ctx, args[0], in, time.Now().Unix())
				if err != nil {
					return err
				}
				fmt.Println(shareID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&accessType, "access-type", "PUBLIC", "PUBLIC, PROTECTED, or PRIVATE")
	cmd.Flags().StringVar(&password, "password", "", "password for PROTECTED shares")
	return cmd
}

func parseAccessType(accessType, password string) (share.PublishInput, error) {
	switch accessType {
	case "PUBLIC":
		return share.PublishInput{AccessType: share.AccessPublic}, nil
	case "PROTECTED":
		if password == "" {
			return share.PublishInput{}, fmt.Errorf("--password required for PROTECTED")
		}
		return share.PublishInput{AccessType: share.AccessProtected, Password: password}, nil
	case "PRIVATE":
		return share.PublishInput{}, fmt.Errorf("PRIVATE shares need a recipient list; use the HTTP API")
	default:
		return share.PublishInput{}, fmt.Errorf("unknown access type %q", accessType)
	}
}

func newListFoldersCmd() *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:   "list-folders",
		Short: "List every folder an owner has registered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				folders, err := sys.ListFolders(ctx, ownerID)
				if err != nil {
					return err
				}
				for _, f := range folders {
					fmt.Printf("%s\t%s\t%s\n", f.FolderUniqueID, f.State, f.RootPath)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner-id", "", "owner user_id")
	cmd.MarkFlagRequired("owner-id")
	return cmd
}

func newGetFolderCmd() *cobra.Command {
	return folderIDCmd("get-folder", "Show one folder's current state", func(ctx context.Context, sys *system.System, folderUniqueID string) error {
		folder, err := sys.GetFolder(ctx, folderUniqueID)
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", folder)
		return nil
	})
}

func newResyncFolderCmd() *cobra.Command {
	return folderIDCmd("resync-folder", "Reindex a PUBLISHED folder in place (spec: resync_folder)", func(ctx context.Context, sys *system.System, folderUniqueID string) error {
		filesIndexed, totalSize, err := sys.ResyncFolder(ctx, folderUniqueID)
		if err != nil {
			return err
		}
		fmt.Printf("files_indexed: %d\ntotal_size: %d\n", filesIndexed, totalSize)
		return nil
	})
}

func newDeleteFolderCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-folder [folder_unique_id]",
		Short: "Hard-delete a folder (spec: delete_folder)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				return sys.DeleteFolder(ctx, args[0], confirm)
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "required to actually delete")
	return cmd
}

func newDownloadShareCmd() *cobra.Command {
	var dest, password, userSKB64 string
	cmd := &cobra.Command{
		Use:   "download-share [share_id]",
		Short: "Fetch and decrypt a share's files (spec: download_share)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				creds := system.DownloadCredentials{Password: password}
				if userSKB64 != "" {
					sk, err := base64.StdEncoding.DecodeString(userSKB64)
					if err != nil {
						return fmt.Errorf("--user-sk: %w", err)
					}
					creds.UserSK = ed25519.PrivateKey(sk)
					creds.HasUserSK = true
				}
				result, err := sys.DownloadShare(ctx, args[0], dest, creds)
				if err != nil {
					return err
				}
				fmt.Printf("completed: %d\nfailed: %d\n", result.Completed, len(result.Failed))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dest, "dest", ".", "destination directory")
	cmd.Flags().StringVar(&password, "password", "", "password for PROTECTED shares")
	cmd.Flags().StringVar(&userSKB64, "user-sk", "", "base64 Ed25519 private key for PRIVATE shares")
	cmd.MarkFlagRequired("dest")
	return cmd
}

func folderIDCmd(use, short string, run func(ctx context.Context, sys *system.System, folderUniqueID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [folder_unique_id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSystem(func(ctx context.Context, sys *system.System) error {
				return run(ctx, sys, args[0])
			})
		},
	}
}
