// Package database owns the process-wide GORM handle and schema
// migration. Credentials come from the environment, with an optional
// Vault KV lookup when DB_PASSWORD is unset or set to "vault".
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"pharmacare-backend/internal/config"
)

// DB is the shared database handle, set by InitDatabase.
var DB *gorm.DB

// InitDatabase connects to postgres and tunes the connection pool.
func InitDatabase() error {
	password, err := resolvePassword()
	if err != nil {
		return fmt.Errorf("resolve database password: %w", err)
	}

	sslMode := config.GetEnv("DB_SSLMODE", "require")
	if os.Getenv("DB_SSLMODE") == "" && config.IsDevelopment() {
		sslMode = "disable"
		log.Println("⚠️  Database SSL disabled for development environment")
	}

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		config.GetEnv("DB_HOST", "localhost"),
		config.GetEnv("DB_USER", "pharmacare"),
		password,
		config.GetEnv("DB_NAME", "pharmacare"),
		config.GetEnv("DB_PORT", "5432"),
		sslMode)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.SetMaxOpenConns(config.GetEnvInt("DB_MAX_OPEN_CONNS", 25))
		sqlDB.SetMaxIdleConns(config.GetEnvInt("DB_MAX_IDLE_CONNS", 5))
		sqlDB.SetConnMaxLifetime(config.GetEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour))
	}

	log.Println("✅ Database connected successfully")
	return nil
}

// RunMigrations applies AutoMigrate for the given models.
func RunMigrations(models ...interface{}) error {
	if DB == nil {
		log.Println("⚠️  Skipping migrations: no database connection")
		return nil
	}
	if err := DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// resolvePassword prefers an explicit DB_PASSWORD. The literal value
// "vault" (or an empty value) triggers a Vault KV lookup.
func resolvePassword() (string, error) {
	explicit := os.Getenv("DB_PASSWORD")
	if explicit != "" && !strings.EqualFold(explicit, "vault") {
		return explicit, nil
	}

	password, err := vaultDBPassword()
	if err != nil {
		return "", fmt.Errorf("fetch DB password from Vault: %w", err)
	}

	log.Println("🔐 Retrieved database password from Vault")
	_ = os.Setenv("DB_PASSWORD", password)
	return password, nil
}

// vaultDBPassword reads the database password from a Vault KV v2
// secret. The mount path defaults to secret/pharmacare.
func vaultDBPassword() (string, error) {
	if strings.EqualFold(os.Getenv("VAULT_ENABLED"), "false") {
		return "", errors.New("vault integration disabled")
	}

	addr := strings.TrimRight(os.Getenv("VAULT_ADDR"), "/")
	if addr == "" {
		return "", errors.New("VAULT_ADDR not set")
	}

	token, err := vaultToken()
	if err != nil {
		return "", err
	}

	secretPath := config.GetEnv("VAULT_SECRETS_PATH", "secret/pharmacare")
	// KV v2 reads go through <mount>/data/<path>.
	if !strings.Contains(secretPath, "/data/") {
		if parts := strings.SplitN(secretPath, "/", 2); len(parts) == 2 {
			secretPath = parts[0] + "/data/" + parts[1]
		} else {
			secretPath = "secret/data/" + secretPath
		}
	}

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/%s", addr, secretPath), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Vault-Token", token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("vault kv %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode kv secret: %w", err)
	}

	for _, key := range []string{"DB_PASSWORD", "db_password"} {
		if raw, ok := payload.Data.Data[key]; ok {
			if v, ok := raw.(string); ok && v != "" {
				return v, nil
			}
		}
	}
	return "", errors.New("db password not found in Vault secret")
}

func vaultToken() (string, error) {
	token := strings.TrimSpace(os.Getenv("VAULT_TOKEN"))
	if token != "" {
		return token, nil
	}

	tokenFile := os.Getenv("VAULT_TOKEN_FILE")
	if tokenFile == "" {
		return "", errors.New("missing VAULT_TOKEN or VAULT_TOKEN_FILE")
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return "", fmt.Errorf("read vault token: %w", err)
	}
	token = strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New("vault token empty")
	}
	return token, nil
}
