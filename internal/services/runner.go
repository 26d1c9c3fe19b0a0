package services

import (
	"context"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"golang.org/x/crypto/ssh"
)

// SSHRunner runs commands on devices over the pooled SSH transport. It is
// the single remote-execution path for both the telemetry collector and
// workflow actions.
type SSHRunner struct {
	pool      *SSHPool
	encryptor *crypto.Encryptor
}

func NewSSHRunner(pool *SSHPool, encryptor *crypto.Encryptor) *SSHRunner {
	return &SSHRunner{pool: pool, encryptor: encryptor}
}

func (r *SSHRunner) client(device *models.Device) (*ssh.Client, error) {
	password, privateKey := "", ""
	if device.EncryptedPassword != "" {
		p, err := r.encryptor.Decrypt(device.EncryptedPassword)
		if err == nil {
			password = p
		}
	}
	if device.EncryptedPrivateKey != "" {
		k, err := r.encryptor.Decrypt(device.EncryptedPrivateKey)
		if err == nil {
			privateKey = k
		}
	}
	return r.pool.GetConnection(device.Address, device.Port, device.Username, password, privateKey, device.AuthType)
}

// Run executes a command and returns its combined output. The context
// deadline bounds the whole call; a session that outlives it is abandoned
// and its connection closed.
func (r *SSHRunner) Run(ctx context.Context, device *models.Device, command string) (string, error) {
	client, err := r.client(device)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session failed: %w", err)
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(command)
		done <- result{out, err}
	}()

	select {
	case res := <-done:
		session.Close()
		if res.err != nil {
			return string(res.out), fmt.Errorf("command failed: %w", res.err)
		}
		return string(res.out), nil
	case <-ctx.Done():
		session.Close()
		client.Close()
		return "", fmt.Errorf("command timed out on %s: %w", device.Hostname, ctx.Err())
	}
}
