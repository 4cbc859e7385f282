package hcloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// EnsureSSHKey uploads publicKey under name unless a key with that name
// exists. An existing key holding a different public key is an error.
func (c *Client) EnsureSSHKey(ctx context.Context, name, publicKey string, labels map[string]string) error {
	_, err := (&EnsureOperation[*hcloud.SSHKey, hcloud.SSHKeyCreateOpts, any]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Create:       simpleCreate(c.client.SSHKey.Create),
		Validate: func(key *hcloud.SSHKey) error {
			if !sameAuthorizedKey(key.PublicKey, publicKey) {
				return fmt.Errorf("ssh key %s exists with a different public key", name)
			}
			return nil
		},
		CreateOptsMapper: func() hcloud.SSHKeyCreateOpts {
			return hcloud.SSHKeyCreateOpts{
				Name:      name,
				PublicKey: publicKey,
				Labels:    labels,
			}
		},
	}).Execute(ctx, c)
	return err
}

// DeleteSSHKey deletes the SSH key with the given name.
func (c *Client) DeleteSSHKey(ctx context.Context, name string) error {
	return (&DeleteOperation[*hcloud.SSHKey]{
		Name:         name,
		ResourceType: "ssh key",
		Get:          c.client.SSHKey.Get,
		Delete:       c.client.SSHKey.Delete,
	}).Execute(ctx, c)
}

// sameAuthorizedKey compares key type and key material, ignoring comments.
func sameAuthorizedKey(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 2 || len(fb) < 2 {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return fa[0] == fb[0] && fa[1] == fb[1]
}
