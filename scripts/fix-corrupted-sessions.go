package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/rpg-skill-engine/internal/entities/battle"
)

// Key layout written by the battle state redis repository
const (
	sessionKeyPrefix = "battle_session:"
	channelKeyPrefix = "battle_channel:"
	sessionIndexKey  = "battle_sessions"
)

type corruptSession struct {
	key     string
	id      string
	problem string
}

func main() {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatal("Failed to parse Redis URL:", err)
	}

	client := redis.NewClient(opt)
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	fmt.Println("Connected to Redis:", redisURL)
	fmt.Println("Scanning for battle sessions that no longer decode...")

	iter := client.Scan(ctx, 0, sessionKeyPrefix+"*", 0).Iterator()

	var corrupted []corruptSession
	var checkedCount int

	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimPrefix(key, sessionKeyPrefix)
		checkedCount++

		data, err := client.Get(ctx, key).Bytes()
		if err != nil {
			fmt.Printf("Error reading %s: %v\n", key, err)
			continue
		}

		session, err := battle.Decode(data)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", key, err)
			corrupted = append(corrupted, corruptSession{key: key, id: id, problem: err.Error()})
			continue
		}

		if session.ID != id {
			fmt.Printf("✗ %s holds session %s\n", key, session.ID)
			corrupted = append(corrupted, corruptSession{key: key, id: id, problem: "id mismatch"})
			continue
		}

		owner, err := client.Get(ctx, channelKeyPrefix+session.ChannelID).Result()
		if err == nil && owner != id {
			fmt.Printf("! %s: channel %s now points at %s\n", key, session.ChannelID, owner)
		}
	}

	if err := iter.Err(); err != nil {
		log.Fatal("Error during scan:", err)
	}

	fmt.Printf("\nChecked %d sessions, found %d corrupted entries\n", checkedCount, len(corrupted))

	if len(corrupted) == 0 {
		fmt.Println("No corrupted sessions found!")
		return
	}

	fmt.Println("\nCorrupted sessions:")
	for _, c := range corrupted {
		fmt.Printf("  - %s (%s)\n", c.key, c.problem)
	}

	fmt.Print("\nDo you want to DELETE these sessions? (yes/no): ")
	response, _ := bufio.NewReader(os.Stdin).ReadString('\n')

	if strings.TrimSpace(response) != "yes" {
		fmt.Println("Aborted - no changes made")
		return
	}

	channels := channelsBySession(ctx, client)

	for _, c := range corrupted {
		pipe := client.TxPipeline()
		pipe.Del(ctx, c.key)
		pipe.SRem(ctx, sessionIndexKey, c.id)
		// a stale channel key would keep the channel claimed
		for _, channelKey := range channels[c.id] {
			pipe.Del(ctx, channelKey)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			fmt.Printf("Failed to delete %s: %v\n", c.key, err)
			continue
		}
		fmt.Printf("Deleted %s\n", c.key)
	}

	fmt.Println("\nCleanup complete!")
}

// channelsBySession maps session ids to the channel keys that point at them
func channelsBySession(ctx context.Context, client *redis.Client) map[string][]string {
	out := make(map[string][]string)

	iter := client.Scan(ctx, 0, channelKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id, err := client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		out[id] = append(out[id], key)
	}
	if err := iter.Err(); err != nil {
		log.Fatal("Error during channel scan:", err)
	}
	return out
}
