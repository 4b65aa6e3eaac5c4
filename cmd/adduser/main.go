package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"mathtutor_go_backend/internal/database"
	"mathtutor_go_backend/internal/services"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gorm.io/gorm"
)

var openDB = func(dsn string) (*gorm.DB, error) {
	return database.Open(dsn, zerolog.Nop())
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email address")
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dsn := fs.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	credits := fs.Int64("credits", services.DefaultCredits, "Starting credit balance")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var missing []string
	if *email == "" {
		missing = append(missing, "email")
	}
	if *first == "" {
		missing = append(missing, "first")
	}
	if len(missing) > 0 {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> -first <name> [-last <name>] [-password <password>] [-dsn <dsn>] [-credits <n>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	if *dsn == "" {
		return errors.New("missing database connection: set -dsn or DATABASE_URL")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password cannot be empty")
	}

	db, err := openDB(*dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx := context.Background()
	ledger := services.NewCreditLedger(db)
	users := services.NewUserService(db, ledger)

	user, err := users.Register(ctx, services.RegisterInput{
		Email:     *email,
		FirstName: *first,
		LastName:  *last,
		Password:  password,
	})
	if errors.Is(err, services.ErrEmailTaken) {
		return fmt.Errorf("user %s already exists", *email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := users.MarkVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}

	balance := services.DefaultCredits
	if *credits != services.DefaultCredits {
		balance, _, err = ledger.Credit(ctx, user.ID, *credits-services.DefaultCredits, services.BillingState{}, "")
		if err != nil {
			return fmt.Errorf("failed to set credits: %w", err)
		}
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s and %d credits\n", user.Email, user.ID, balance)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
