package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"valentinequest/internal/config"
	"valentinequest/internal/database"
	"valentinequest/internal/events"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// dbFlags 未指定时回退到与 API 相同的环境变量。
type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

var (
	flags     dbFlags
	redisAddr string
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Valentine backend administration",
	Long:          "Manage admin accounts and inspect candidate submissions directly against the database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
	pf.StringVar(&redisAddr, "redis-addr", "", "Redis 地址（可选，默认读 REDIS_HOST/REDIS_PORT）")

	rootCmd.AddCommand(createUserCmd, resetPasswordCmd, candidatesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase() (*gorm.DB, error) {
	dbCfg, err := flags.databaseConfig()
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}

// notifyCandidateDeleted 通知运行中的 API 丢弃页缓存。Redis 不可用时只提示，
// 缓存会在 page_cache_ttl 后自然过期。
func notifyCandidateDeleted(ctx context.Context, id string) {
	addr := firstNonEmpty(redisAddr)
	if addr == "" {
		addr = firstNonEmpty(os.Getenv("REDIS_HOST"), "localhost") + ":" + firstNonEmpty(os.Getenv("REDIS_PORT"), "6379")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := events.Publish(ctx, client, events.TypeCandidateDeleted, map[string]string{"id": id}); err != nil {
		fmt.Println(mutedStyle.Render("could not notify api servers, cached pages expire on their own: " + err.Error()))
	}
}

func (f dbFlags) databaseConfig() (config.DatabaseConfig, error) {
	host := firstNonEmpty(f.host, os.Getenv("DATABASE_HOST"), "localhost")
	name := firstNonEmpty(f.name, os.Getenv("POSTGRES_DB"))
	user := firstNonEmpty(f.user, os.Getenv("POSTGRES_USER"))
	password := firstNonEmpty(f.password, os.Getenv("POSTGRES_PASSWORD"))
	sslMode := firstNonEmpty(f.sslMode, os.Getenv("DATABASE_SSLMODE"), "disable")

	port := f.port
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	if name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if user == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslMode,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func printField(label, value string) {
	fmt.Println(labelStyle.Render(label+": ") + valueStyle.Render(value))
}
