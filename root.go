package onedrived

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// Drives lists all drives available to the account.
func (root *Root) Drives(ctx context.Context) ([]*Drive, error) {
	type Response struct {
		Value []DriveInfo
	}

	response := new(Response)
	if err := root.fetch.get(ctx, root.baseURL+"/me/drives", response); err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}

	drives := make([]*Drive, 0, len(response.Value))
	for _, info := range response.Value {
		drives = append(drives, root.newDrive(info, DriveConfig{}))
	}

	return drives, nil
}

// DefaultDrive fetches the default drive of the account.
func (root *Root) DefaultDrive(ctx context.Context) (*Drive, error) {
	info := new(DriveInfo)
	if err := root.fetch.get(ctx, root.baseURL+"/me/drive", info); err != nil {
		return nil, fmt.Errorf("default drive: %w", err)
	}

	return root.newDrive(*info, DriveConfig{}), nil
}

// Drive fetches a drive by id.
func (root *Root) Drive(ctx context.Context, driveID string) (*Drive, error) {
	info := new(DriveInfo)
	if err := root.fetch.get(ctx, root.baseURL+"/drives/"+url.PathEscape(driveID), info); err != nil {
		return nil, fmt.Errorf("drive %v: %w", driveID, err)
	}

	return root.newDrive(*info, DriveConfig{}), nil
}

// newDrive falls back to the defaults when config cannot be applied.
func (root *Root) newDrive(info DriveInfo, config DriveConfig) *Drive {
	drive := &Drive{
		root:   root,
		info:   info,
		config: root.defaults.merge(DriveConfig{}),
		fetch:  root.fetch,
		logger: root.logger.With(zap.String("drive", info.ID)),
	}

	if err := drive.SetConfig(config); err != nil {
		drive.logger.Warn("ignoring drive configuration", zap.Error(err))
	}

	return drive
}
