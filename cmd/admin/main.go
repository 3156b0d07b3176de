package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/logger"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]

Commands:
  sweep-queue                    evict queue entries that stopped heartbeating
  close-room <room_id>           close a room for good and notify both occupants
  reports [limit]                list the newest reports
  unblock <blocker> <blocked>    lift a block; participants are kind:id`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg := config.Load()
	logger.InitFromConfig(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.OpenDB(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rdb, err := storage.OpenRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()
	s := storage.NewStorageService(db, rdb)
	bus := chathub.NewRedisBus(rdb)

	command := os.Args[1]

	switch command {
	case "sweep-queue":
		matcher := chathub.NewMatcherService(s, bus, cfg.Match)
		n, err := matcher.Sweep(ctx)
		if err != nil {
			log.Fatalf("Error sweeping queue: %v", err)
		}
		fmt.Printf("Evicted %d stale queue entries.\n", n)
	case "close-room":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin close-room <room_id>")
			os.Exit(1)
		}
		room, err := chathub.NewRoomService(s, bus).ForceClose(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Error closing room: %v", err)
		}
		fmt.Printf("Room %s is %s.\n", room.ID, room.State)
	case "reports":
		limit := 20
		if len(os.Args) > 2 {
			limit, err = strconv.Atoi(os.Args[2])
			if err != nil || limit <= 0 {
				fmt.Println("Invalid limit. Please provide a positive integer.")
				os.Exit(1)
			}
		}
		if err := printReports(ctx, s, limit); err != nil {
			log.Fatalf("Error listing reports: %v", err)
		}
	case "unblock":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin unblock <blocker> <blocked>")
			os.Exit(1)
		}
		blocker, err := models.ParseParticipant(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid blocker: %v", err)
		}
		blocked, err := models.ParseParticipant(os.Args[3])
		if err != nil {
			log.Fatalf("Invalid blocked participant: %v", err)
		}
		removed, err := s.DeleteBlock(ctx, blocker, blocked)
		if err != nil {
			log.Fatalf("Error removing block: %v", err)
		}
		if !removed {
			fmt.Printf("%s has not blocked %s.\n", blocker, blocked)
			return
		}
		fmt.Printf("%s no longer blocks %s.\n", blocker, blocked)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func printReports(ctx context.Context, s storage.RelationshipStore, limit int) error {
	reports, err := s.ListReports(ctx, limit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No reports.")
		return nil
	}
	for _, r := range reports {
		room := "-"
		if r.RoomID != nil {
			room = *r.RoomID
		}
		fmt.Printf("#%d  %s  %-10s sev=%-3d %s -> %s  room=%s  %q\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Category, r.Severity,
			r.Reporter, r.Reported, room, r.Reason)
	}
	return nil
}
