package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

const (
	CipherExtension   = ".gpg"
	DefaultCipherAlgo = "AES256"
	DefaultGPG        = "gpg"
)

// Encryptor turns a plaintext stream into ciphertext.
type Encryptor interface {
	Encrypt(ctx context.Context, plaintext io.Reader, ciphertext io.Writer) error
}

// Decryptor reverses Encryptor.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertext io.Reader, plaintext io.Writer) error
}

// GPG runs a gpg compatible executable in symmetric mode. The passphrase is handed over
// on file descriptor 3, so it never shows up in the process list.
type GPG struct {
	Path       string
	Passphrase string
	CipherAlgo string
}

func (g *GPG) Encrypt(ctx context.Context, plaintext io.Reader, ciphertext io.Writer) error {
	algo := g.CipherAlgo
	if algo == "" {
		algo = DefaultCipherAlgo
	}
	return g.run(ctx, "encrypt", []string{"--symmetric", "--cipher-algo", algo}, plaintext, ciphertext)
}

func (g *GPG) Decrypt(ctx context.Context, ciphertext io.Reader, plaintext io.Writer) error {
	return g.run(ctx, "decrypt", []string{"--decrypt"}, ciphertext, plaintext)
}

func (g *GPG) Binary() string {
	if g.Path == "" {
		return DefaultGPG
	}
	return g.Path
}

func (g *GPG) run(ctx context.Context, op string, opArgs []string, in io.Reader, out io.Writer) error {
	bin := g.Binary()

	passR, passW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("passphrase pipe: %w", err)
	}
	defer passR.Close()
	// The passphrase is tiny compared to the pipe buffer, so this never blocks.
	_, err = io.WriteString(passW, g.Passphrase+"\n")
	_ = passW.Close()
	if err != nil {
		return fmt.Errorf("write passphrase: %w", err)
	}

	args := []string{"--batch", "--yes", "--quiet", "--no-tty", "--pinentry-mode", "loopback", "--passphrase-fd", "3"}
	args = append(args, opArgs...)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = in
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.ExtraFiles = []*os.File{passR}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &EncryptionError{Op: op, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("%w: %s %s: %v", ErrEncryptionFailed, bin, op, err)
	}
	return nil
}

var (
	_ Encryptor = (*GPG)(nil)
	_ Decryptor = (*GPG)(nil)
)
