package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values of the backend service.
// Each field corresponds to an environment variable.
type Config struct {
	Env              string // application environment (e.g. "dev", "prod")
	Port             string // HTTP port to listen on
	PublicURL        string // externally reachable base URL, used to build object URLs
	DBUser           string // database username
	DBPass           string // database password (optional)
	DBHost           string // database host address
	DBPort           string // database port number
	DBName           string // database name
	JWTSecret        string // secret used to sign JWTs
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	EmailTokenTTLMin int    // lifetime of confirmation and recovery links
	BcryptCost       int    // bcrypt cost for password hashing
	AutoConfirm      bool   // sign-ups receive a session without email confirmation
	MongoURI         string // object store connection string
	MongoDB          string // object store database name
	Market           Market
}

// Load reads configuration values from environment variables and returns a
// Config. A .env file in the working directory is loaded first when present.
// Missing required variables cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load()

	port := must("APP_PORT")
	return Config{
		Env:              must("APP_ENV"),
		Port:             port,
		PublicURL:        strings.TrimRight(envStr("APP_PUBLIC_URL", "http://localhost:"+port), "/"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		AccessTTLMin:     mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays:   mustInt("REFRESH_TOKEN_TTL_DAYS"),
		EmailTokenTTLMin: envInt("EMAIL_TOKEN_TTL_MIN", 60*24),
		BcryptCost:       mustInt("BCRYPT_COST"),
		AutoConfirm:      envBool("AUTH_AUTOCONFIRM", false),
		MongoURI:         envStr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:          envStr("MONGO_DB", "marketplace"),
		Market:           LoadMarket(),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
