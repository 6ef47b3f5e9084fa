package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/draftmill/collab/ot"
	"github.com/draftmill/collab/server"
	"github.com/draftmill/collab/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	storeKind := flag.String("store", "memory", "section store backend: memory, postgres or firestore")
	redisAddr := flag.String("redis", "", "Redis address for multi-node broadcast (empty = single node)")
	flushInterval := flag.Duration("flush", 5*time.Second, "write-behind flush interval for persistent stores")
	flag.Parse()

	ctx := context.Background()
	backing := buildStore(ctx, *storeKind, *flushInterval)

	var broker server.Broker = server.NoopBroker{}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis at %s: %v", *redisAddr, err)
		}
		broker = server.NewRedisBroker(rdb)
	}

	engine := &ot.JupiterEngine{}
	hub := server.NewHub(backing, engine, broker, uuid.NewString())
	go hub.Run()

	handler := server.NewHandler(hub)

	log.Printf("Starting server on %s (store=%s)", *addr, *storeKind)
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatal(err)
	}
}

func buildStore(ctx context.Context, kind string, flushInterval time.Duration) store.SectionStore {
	switch kind {
	case "memory":
		return store.NewMemoryStore()

	case "postgres":
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			log.Fatal("DATABASE_URL must be set for -store=postgres")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("connect to postgres: %v", err)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.Init(ctx); err != nil {
			log.Fatalf("init postgres schema: %v", err)
		}
		return store.NewCachedStore(pg, flushInterval)

	case "firestore":
		project := os.Getenv("FIRESTORE_PROJECT")
		if project == "" {
			log.Fatal("FIRESTORE_PROJECT must be set for -store=firestore")
		}
		client, err := firestore.NewClient(ctx, project)
		if err != nil {
			log.Fatalf("connect to firestore: %v", err)
		}
		return store.NewCachedStore(store.NewFirestoreStore(client), flushInterval)

	default:
		log.Fatalf("unknown store backend %q", kind)
		return nil
	}
}
