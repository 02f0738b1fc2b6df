package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/qna/pkg/models"
)

var (
	userEmail    string
	userName     string
	userPassword string
	userRole     string
)

var userAddCmd = &cobra.Command{
	Use:   "useradd",
	Short: "Create a user profile",
	Long:  `Creates a user that can sign in. This is the only way to create admins.`,
	Args:  cobra.NoArgs,
	RunE:  runUserAdd,
}

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleUser), "Role: user or admin")
	_ = userAddCmd.MarkFlagRequired("email")
	_ = userAddCmd.MarkFlagRequired("password")

	rootCmd.AddCommand(userAddCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role := models.Role(userRole)
	if role != models.RoleUser && role != models.RoleAdmin {
		return fmt.Errorf("role must be user or admin, got %q", userRole)
	}
	if len(userPassword) < 6 {
		return fmt.Errorf("password must have at least 6 characters")
	}
	email := strings.ToLower(strings.TrimSpace(userEmail))

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	existing, err := e.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user %s already exists", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(userPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(userName)
	if name == "" {
		name = email
	}
	u := &models.User{ID: uuid.NewString(), Email: email, DisplayName: name, Role: role, PasswordHash: string(hash)}
	if err := e.repo.CreateUser(ctx, u); err != nil {
		return err
	}
	return printJSON(cmd, u)
}
