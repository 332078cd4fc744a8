// Package main seeds a database with sample events for local testing.
//
// It writes a year of global observances and, for every user, a handful of
// personal events spread over the coming months.
//
// Usage:
//
//	DB_PATH=~/.calendar-server/db go run ./cmd/seed
//	DB_PATH=~/.calendar-server/db go run ./cmd/seed --create-users  # Also create test users
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/calendararchive/calendar-server/internal/auth"
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/id"
	"github.com/calendararchive/calendar-server/internal/store"
)

var (
	createUsers = flag.Bool("create-users", false, "Create test users before seeding personal events")
	perUser     = flag.Int("per-user", 5, "Personal events to create for each user")
)

type observance struct {
	title    string
	month    time.Month
	day      int
	category string
	country  string
}

var observances = []observance{
	{"New Year's Day", time.January, 1, "holiday", ""},
	{"Australia Day", time.January, 26, "national", "Australia"},
	{"Valentine's Day", time.February, 14, "observance", ""},
	{"International Women's Day", time.March, 8, "international", ""},
	{"Earth Day", time.April, 22, "international", ""},
	{"Labour Day", time.May, 1, "holiday", ""},
	{"Canada Day", time.July, 1, "national", "Canada"},
	{"Independence Day", time.July, 4, "national", "United States"},
	{"Bastille Day", time.July, 14, "national", "France"},
	{"German Unity Day", time.October, 3, "national", "Germany"},
	{"Halloween", time.October, 31, "cultural", ""},
	{"Christmas Day", time.December, 25, "religious", ""},
}

var personalTitles = []string{
	"Dentist appointment",
	"Team offsite",
	"Birthday dinner",
	"Car service",
	"Book club",
	"Parent-teacher meeting",
	"Flight home",
}

var personalCategories = []string{"personal", "work", "birthday", "other"}

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/.calendar-server/db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	s, err := store.New(dbPath, nil, store.NewNoopEmitter())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if *createUsers {
		createTestUsers(ctx, s)
	}

	year := time.Now().Year()
	created := 0
	for _, o := range observances {
		doc := store.Document{
			store.FieldTitle:    o.title,
			store.FieldDate:     time.Date(year, o.month, o.day, 0, 0, 0, 0, time.Local).Format(time.RFC3339),
			store.FieldCategory: o.category,
			store.FieldCountry:  o.country,
			store.FieldColor:    domain.DefaultGlobalColor,
		}
		if _, err := s.CreateEvent(ctx, store.Global(), doc); err != nil {
			log.Printf("Failed to create %q: %v", o.title, err)
			continue
		}
		created++
	}
	fmt.Printf("Created %d global events for %d\n", created, year)

	users, err := s.ListUsers(ctx)
	if err != nil {
		log.Fatalf("Failed to get users: %v", err)
	}
	if len(users) == 0 {
		fmt.Println("No users found, skipping personal events. Use --create-users to add some.")
		return
	}

	now := time.Now()
	for _, user := range users {
		fmt.Printf("\nSeeding personal events for: %s (%s)\n", user.DisplayName, user.ID)

		for range *perUser {
			// Somewhere in the next 90 days, during working hours.
			date := time.Date(now.Year(), now.Month(), now.Day()+rand.IntN(90),
				8+rand.IntN(10), 15*rand.IntN(4), 0, 0, time.Local)

			doc := store.Document{
				store.FieldTitle:    personalTitles[rand.IntN(len(personalTitles))],
				store.FieldDate:     date.Format(time.RFC3339),
				store.FieldCategory: personalCategories[rand.IntN(len(personalCategories))],
				store.FieldColor:    domain.DefaultPersonalColor,
			}
			if _, err := s.CreateEvent(ctx, store.Personal(user.ID), doc); err != nil {
				log.Printf("Failed to create personal event: %v", err)
			}
		}
		fmt.Printf("  Created %d personal events\n", *perUser)
	}

	fmt.Println("\nSeeding complete!")
}

func createTestUsers(ctx context.Context, s *store.Badger) {
	testUsers := []struct {
		name  string
		email string
		role  domain.Role
	}{
		{"Ada Admin", "admin@example.com", domain.RoleAdmin},
		{"Alice Smith", "alice@example.com", domain.RoleUser},
		{"Bob Jones", "bob@example.com", domain.RoleUser},
	}

	hash, err := auth.HashPassword("password123")
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Println("Creating test users (password: password123)...")
	now := time.Now()
	for _, tu := range testUsers {
		user := &domain.User{
			CreatedAt:    now,
			UpdatedAt:    now,
			ID:           id.MustGenerate(id.PrefixUser),
			Email:        tu.email,
			DisplayName:  tu.name,
			PasswordHash: hash,
			Role:         tu.role,
		}
		if err := s.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				fmt.Printf("  %s already exists\n", tu.email)
				continue
			}
			log.Printf("Failed to create user %s: %v", tu.email, err)
			continue
		}
		fmt.Printf("  Created %s (%s)\n", tu.email, tu.role)
	}
}
