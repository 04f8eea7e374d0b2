package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"valentinequest/internal/auth"
	"valentinequest/internal/database"
)

const generatedPasswordBytes = 24

var createUserCmd = &cobra.Command{
	Use:   "create-user USERNAME",
	Short: "Create an admin account with a one-time random password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.ToLower(strings.TrimSpace(args[0]))
		if username == "" {
			return errors.New("username must not be blank")
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}

		var existing database.AdminUser
		switch err := db.Where("username = ?", username).First(&existing).Error; {
		case err == nil:
			return fmt.Errorf("admin %q already exists", username)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("query admin: %w", err)
		}

		password, hashed, err := newOneTimePassword()
		if err != nil {
			return err
		}

		admin := database.AdminUser{
			Username:           username,
			PasswordHash:       hashed,
			MustChangePassword: true,
		}
		if err := db.Create(&admin).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}

		fmt.Println(titleStyle.Render("已创建管理员账号（首次登录需强制改密）"))
		printCredentials(username, password)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password USERNAME",
	Short: "Replace an admin password with a new one-time random password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.ToLower(strings.TrimSpace(args[0]))

		db, err := openDatabase()
		if err != nil {
			return err
		}

		var admin database.AdminUser
		if err := db.Where("username = ?", username).First(&admin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("admin %q does not exist", username)
			}
			return fmt.Errorf("query admin: %w", err)
		}

		password, hashed, err := newOneTimePassword()
		if err != nil {
			return err
		}
		if err := db.Model(&admin).Updates(map[string]any{
			"password_hash":        hashed,
			"must_change_password": true,
		}).Error; err != nil {
			return fmt.Errorf("update admin: %w", err)
		}

		fmt.Println(titleStyle.Render("已重置管理员密码"))
		printCredentials(username, password)
		return nil
	},
}

func newOneTimePassword() (plain, hashed string, err error) {
	plain, err = auth.GenerateRandomPassword(generatedPasswordBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate password: %w", err)
	}
	hashed, err = auth.HashPassword(plain)
	if err != nil {
		return "", "", fmt.Errorf("hash password: %w", err)
	}
	return plain, hashed, nil
}

func printCredentials(username, password string) {
	printField("用户名", username)
	printField("初始密码", password)
	fmt.Println(mutedStyle.Render("该密码仅显示一次，请立即登录并修改。"))
}
