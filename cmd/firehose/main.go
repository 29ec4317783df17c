// Command firehose authenticates against the upstream API, polls the
// comment and post listings of a subreddit at the learned rate, and
// broadcasts every new model to a pool of workers.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cedricgc/firehose/pkg/auth"
	"github.com/cedricgc/firehose/pkg/client"
	"github.com/cedricgc/firehose/pkg/dispatch"
	"github.com/cedricgc/firehose/pkg/logging"
	"github.com/cedricgc/firehose/pkg/queue"
	"github.com/cedricgc/firehose/pkg/seen"
	"github.com/cedricgc/firehose/pkg/workers"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	// Configuration from environment into explicit structs.
	userAgent := getEnv("USER_AGENT", "firehose/0.1.0")
	subreddit := getEnv("SUBREDDIT", "all")
	pollInterval := getDurationEnv("POLL_INTERVAL", 5*time.Second)

	authCfg := auth.Config{
		TokenURL:     getEnv("TOKEN_URL", "https://www.reddit.com/api/v1/access_token"),
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		Username:     os.Getenv("API_USERNAME"),
		Password:     os.Getenv("API_PASSWORD"),
		UserAgent:    userAgent,
	}

	tokens, err := auth.NewManager(authCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid auth configuration")
	}

	requestScheduler := queue.New(queue.Config{Name: "requests"})

	api, err := client.New(tokens, requestScheduler, client.Config{
		BaseURL:   getEnv("BASE_URL", "https://oauth.reddit.com"),
		UserAgent: userAgent,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid client configuration")
	}

	// Optional Redis dedup; without it restarts may rebroadcast models.
	var deduper dispatch.Deduper
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		deduper = seen.NewStore(redisClient, 0)
		logger.Info().Str("redis_url", redisURL).Msg("Dedup store enabled")
	}

	dispatcher := dispatch.New(queue.New(queue.Config{Name: "dispatch"}), deduper)

	pool := workers.NewPool(dispatcher, workers.Config{
		Workers:   getIntEnv("WORKERS", 4),
		InboxSize: getIntEnv("WORKER_INBOX", 256),
	}, func(msg dispatch.Message) {
		// Default consumer: emit each model as a log event. Real
		// deployments replace this handler with their own transport.
		var preview struct {
			ID     string `json:"id"`
			Author string `json:"author"`
		}
		_ = json.Unmarshal(msg.Model, &preview)
		logger.Info().
			Str("channel", msg.Channel).
			Str("id", preview.ID).
			Str("author", preview.Author).
			Msg("Model received")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("subreddit", subreddit).
		Dur("poll_interval", pollInterval).
		Str("user_agent", userAgent).
		Msg("Starting firehose")

	poll := func(path string) {
		api.Models(ctx, client.RequestSpec{Path: path}, func(children []client.Thing) {
			for _, thing := range children {
				dispatcher.Dispatch(ctx, thing)
			}
		})
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	commentsPath := "/r/" + subreddit + "/comments"
	postsPath := "/r/" + subreddit + "/new"

	poll(commentsPath)
	poll(postsPath)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			pool.Stop()
			return
		case <-ticker.C:
			poll(commentsPath)
			poll(postsPath)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
