package hcloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/hdistcc/internal/util/labels"
	"github.com/imamik/hdistcc/internal/util/retry"
)

// Image owners understood by ResolveImage.
const (
	// OwnerSystem resolves a family as a Hetzner system image name
	// such as "ubuntu-24.04".
	OwnerSystem = "system"

	// OwnerSnapshot resolves a family to the newest snapshot labelled
	// with it, for prebuilt distcc images.
	OwnerSnapshot = "snapshot"
)

// ErrImageNotFound is returned when no image matches a family.
var ErrImageNotFound = errors.New("image not found")

const imagePollInterval = 5 * time.Second

// ResolveImage returns the ID of the image for family, matching the
// client architecture. A snapshot that is still being created is waited
// for up to the ImageWait timeout.
func (c *Client) ResolveImage(ctx context.Context, owner, family string) (string, error) {
	var img *hcloud.Image
	switch owner {
	case OwnerSystem, "":
		found, _, err := c.client.Image.GetForArchitecture(ctx, family, c.architecture)
		if err != nil {
			return "", fmt.Errorf("failed to get image %s: %w", family, err)
		}
		img = found
	case OwnerSnapshot:
		images, err := c.client.Image.AllWithOpts(ctx, hcloud.ImageListOpts{
			ListOpts:     hcloud.ListOpts{LabelSelector: labels.KeyFamily + "=" + family},
			Type:         []hcloud.ImageType{hcloud.ImageTypeSnapshot},
			Architecture: []hcloud.Architecture{c.architecture},
			Sort:         []string{"created:desc"},
		})
		if err != nil {
			return "", fmt.Errorf("failed to list snapshots for %s: %w", family, err)
		}
		if len(images) > 0 {
			img = images[0]
		}
	default:
		return "", fmt.Errorf("unsupported image owner %q", owner)
	}

	if img == nil {
		return "", fmt.Errorf("%w: %s/%s (%s)", ErrImageNotFound, owner, family, c.architecture)
	}
	if img.Status != hcloud.ImageStatusAvailable {
		if err := c.waitForImageAvailability(ctx, img); err != nil {
			return "", err
		}
	}
	return strconv.FormatInt(img.ID, 10), nil
}

// waitForImageAvailability waits for an image to become available.
func (c *Client) waitForImageAvailability(ctx context.Context, img *hcloud.Image) error {
	c.log.Info("waiting for image to become available", "image", img.Name, "id", img.ID, "status", img.Status)

	attempts := max(int(c.timeouts.ImageWait/imagePollInterval), 1)
	_, err := retry.Poll(ctx, imagePollInterval, func(ctx context.Context) (bool, error) {
		current, _, err := c.client.Image.GetByID(ctx, img.ID)
		if err != nil {
			return false, retry.Fatal(fmt.Errorf("failed to get image status: %w", err))
		}
		if current == nil {
			return false, retry.Fatal(fmt.Errorf("%w: image %d disappeared", ErrImageNotFound, img.ID))
		}
		return current.Status == hcloud.ImageStatusAvailable, nil
	}, retry.WithMaxAttempts(attempts))
	if err != nil {
		return fmt.Errorf("image %d did not become available: %w", img.ID, err)
	}
	return nil
}
