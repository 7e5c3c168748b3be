package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yukikurage/annotation-api/internal/database"
	"github.com/yukikurage/annotation-api/internal/models"
	"github.com/yukikurage/annotation-api/internal/repository"
	"github.com/yukikurage/annotation-api/internal/services"
)

var createUserFlags struct {
	username string
	email    string
	fullName string
	password string
	role     string
}

// createUserCmd creates accounts from the shell, which is how the first
// administrator comes into existence.
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, closer, err := bootstrap()
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := database.Migrate(); err != nil {
			return err
		}

		auth := services.NewAuthService(repository.NewUserRepository(database.GetDB()))
		user, err := auth.CreateUser(models.Actor{Role: models.RoleAdmin}, services.CreateUserInput{
			Username: createUserFlags.username,
			Email:    createUserFlags.email,
			FullName: createUserFlags.fullName,
			Password: createUserFlags.password,
			Role:     models.Role(createUserFlags.role),
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		log.WithFields(log.Fields{"id": user.ID, "username": user.Username, "role": user.Role}).Info("user ready")
		return nil
	},
}

func init() {
	f := createUserCmd.Flags()
	f.StringVar(&createUserFlags.username, "username", "", "login name")
	f.StringVar(&createUserFlags.email, "email", "", "email address")
	f.StringVar(&createUserFlags.fullName, "full-name", "", "display name")
	f.StringVar(&createUserFlags.password, "password", "", "initial password")
	f.StringVar(&createUserFlags.role, "role", string(models.RoleAdmin), "admin, engineer, reviewer or annotator")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")
}
