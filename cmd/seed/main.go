// Command main seeds a development database with fake users and campaigns.
package main

import (
	"context"
	"flag"
	"log"

	"fundsphere/internal/bootstrap"
	"fundsphere/internal/config"
	"fundsphere/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	perUser := flag.Int("campaigns", 3, "Campaigns per user")
	published := flag.Int("published", 60, "Percentage of campaigns to publish")
	randSeed := flag.Int64("seed", 0, "Fake data seed (0 for random)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	seeder := seed.NewSeeder(rt.Stores, seed.NewFactory(*randSeed, nil))
	res, err := seeder.Run(ctx, seed.Options{
		NumUsers:         *numUsers,
		CampaignsPerUser: *perUser,
		PublishedPercent: *published,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d campaigns (%d published). Password for every account: %s",
		res.Users, res.Campaigns, res.Published, seed.DefaultPassword)
}
