// Package main はユーザー初期化スクリプトです。
// admin と viewer の2ユーザーをプロビジョニングします。APIサーバーは
// ユーザーを作成しないため、これが唯一の作成経路です。
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/yourusername/letter-box/internal/auth"
	"github.com/yourusername/letter-box/internal/config"
	"github.com/yourusername/letter-box/internal/store"
)

const maxNameLength = 50

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	repos, err := store.NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer repos.Close()

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Letter Box - user provisioning")
	fmt.Println()

	if err := seedUser(ctx, repos.Users(), reader, store.RoleAdmin); err != nil {
		return err
	}
	if err := seedUser(ctx, repos.Users(), reader, store.RoleViewer); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("done")
	return nil
}

// seedUser は指定ロールのユーザーを作成、既にあれば更新します。
func seedUser(ctx context.Context, users store.UserRepository, reader *bufio.Reader, role store.Role) error {
	existing, err := users.FindByRole(ctx, role)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	defaultName := string(role)
	if existing != nil {
		defaultName = existing.Name
	}

	fmt.Printf("display name for %s (default: %s): ", role, defaultName)
	name, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}

	fmt.Printf("password for %s (min 8 chars): ", role)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if !auth.ValidatePasswordStrength(string(password)) {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	if existing != nil {
		if err := users.Update(ctx, existing.ID, name, hash); err != nil {
			return err
		}
		fmt.Printf("updated %s user (id=%d)\n", role, existing.ID)
		return nil
	}

	created, err := users.Create(ctx, &store.User{Role: role, Name: name, PasswordHash: hash})
	if err != nil {
		return err
	}
	fmt.Printf("created %s user (id=%d)\n", role, created.ID)
	return nil
}
