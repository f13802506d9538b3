package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/client"
	"github.com/ulma/ulma/internal/config"
	"github.com/ulma/ulma/internal/guestbook"
	"github.com/ulma/ulma/internal/logging"
	"github.com/ulma/ulma/internal/models"
	"github.com/ulma/ulma/internal/verification"
)

const usage = `Usage: ulma <command> [flags]

Commands:
  signup          verify a phone number and create an account
  login           log in and print an access token
  events:create   create an event
  guests:create   add a guest to your contacts
  guests          list an event's guest ledger
  register        register an amount given by a guest at an event

Set ULMA_SERVER to the API base URL and ULMA_TOKEN to the access token.`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	api := client.New(cfg.BaseURL,
		client.WithTimeout(cfg.Timeout),
		client.WithToken(cfg.Token),
		client.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := bufio.NewScanner(os.Stdin)
	args := os.Args[2:]

	switch os.Args[1] {
	case "signup":
		err = runSignup(ctx, api, scanner, logger)
	case "login":
		err = runLogin(ctx, api, args)
	case "events:create":
		err = runCreateEvent(ctx, api, args)
	case "guests:create":
		err = runCreateGuest(ctx, api, args)
	case "guests":
		err = runGuests(ctx, api, args, logger)
	case "register":
		err = runRegister(ctx, api, scanner, args, logger)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Printf("Unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Println("Error:", describe(err))
		os.Exit(1)
	}
}

func prompt(scanner *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(scanner.Text()), true
}

func runSignup(ctx context.Context, api *client.Client, scanner *bufio.Scanner, logger *logrus.Logger) error {
	fmt.Println("[1] Identity")
	var identity verification.Identity
	for {
		var ok bool
		if identity.Name, ok = prompt(scanner, "Name: "); !ok {
			return nil
		}
		if identity.BirthDate, ok = prompt(scanner, "Birth date (YYMMDD): "); !ok {
			return nil
		}
		if identity.IDLastDigit, ok = prompt(scanner, "First digit of the ID number's second half (1-4): "); !ok {
			return nil
		}
		err := identity.Validate()
		if err == nil {
			break
		}
		fmt.Println("Please fix the following:")
		fmt.Println(err)
	}

	fmt.Println("[2] Phone verification")
	var mu sync.Mutex
	lastStatus := verification.Idle
	session := verification.NewSession(api,
		verification.WithLogger(logger),
		verification.OnChange(func(s verification.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if s.Status != lastStatus {
				lastStatus = s.Status
				if s.Status == verification.Expired {
					fmt.Println("\nThe code expired. Enter 'r' to request a new one.")
				}
				return
			}
			if s.Status == verification.CodeSent && s.SecondsRemaining > 0 && s.SecondsRemaining%30 == 0 {
				fmt.Printf("\n(%s left) ", verification.FormatCountdown(s.SecondsRemaining))
			}
		}),
	)
	defer session.Close()

	if err := requestCode(ctx, session, scanner); err != nil {
		return err
	}

	for session.Status() != verification.Verified {
		code, ok := prompt(scanner, "Verification code (or 'r' to resend): ")
		if !ok {
			return nil
		}
		if code == "r" {
			if err := session.RequestCode(ctx, session.Snapshot().PhoneNumber); err != nil {
				fmt.Println("Error:", describe(err))
				continue
			}
			fmt.Printf("New code sent, valid for %s.\n", verification.FormatCountdown(session.Snapshot().SecondsRemaining))
			continue
		}

		err := session.SubmitCode(ctx, code)
		switch {
		case err == nil:
			fmt.Println("Phone number verified.")
		case errors.Is(err, client.ErrExpired):
			fmt.Println("The verification time is over. Enter 'r' to request a new code.")
		case sessionEnded(err):
			return err
		default:
			fmt.Println(describe(err))
		}
	}

	fmt.Println("[3] Account")
	loginID, ok := prompt(scanner, "Login id: ")
	if !ok {
		return nil
	}
	password, ok := prompt(scanner, "Password: ")
	if !ok {
		return nil
	}

	if err := api.Signup(ctx, client.SignupRequest{
		LoginID:     loginID,
		Password:    password,
		Name:        identity.Name,
		BirthDate:   identity.BirthDate,
		PhoneNumber: session.VerifiedPhone(),
	}); err != nil {
		return err
	}
	fmt.Printf("Account %s created. Run 'ulma login -id %s' to log in.\n", loginID, loginID)
	return nil
}

func requestCode(ctx context.Context, session *verification.Session, scanner *bufio.Scanner) error {
	for {
		phone, ok := prompt(scanner, "Phone number: ")
		if !ok {
			return errors.New("no phone number entered")
		}
		err := session.RequestCode(ctx, phone)
		if err == nil {
			snap := session.Snapshot()
			fmt.Printf("Code sent to %s, valid for %s.\n",
				verification.FormatPhoneNumber(snap.PhoneNumber),
				verification.FormatCountdown(snap.SecondsRemaining))
			return nil
		}

		var verr *client.ValidationError
		if errors.As(err, &verr) || errors.Is(err, client.ErrDuplicateResource) {
			fmt.Println(describe(err))
			continue
		}
		return err
	}
}

func runLogin(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	loginID := fs.String("id", "", "Login id")
	password := fs.String("password", "", "Password")
	fs.Parse(args)

	if *loginID == "" || *password == "" {
		return errors.New("-id and -password are required")
	}

	pair, err := api.Login(ctx, *loginID, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in. Token expires in %ds.\n", pair.ExpiresIn)
	fmt.Printf("export ULMA_TOKEN=%s\n", pair.AccessToken)
	return nil
}

func runCreateEvent(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("events:create", flag.ExitOnError)
	name := fs.String("name", "", "Event name")
	category := fs.String("category", "", "Event category (wedding, funeral, birthday, ...)")
	date := fs.String("date", "", "Event date (YYYY-MM-DD)")
	fs.Parse(args)

	id, err := api.CreateEvent(ctx, client.CreateEventRequest{Name: *name, Category: *category, Date: *date})
	if err != nil {
		return err
	}
	fmt.Printf("Event %d created.\n", id)
	return nil
}

func runCreateGuest(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("guests:create", flag.ExitOnError)
	name := fs.String("name", "", "Guest name")
	category := fs.String("category", "", "Relationship (family, friend, work, ...)")
	fs.Parse(args)

	id, err := api.CreateGuest(ctx, client.CreateGuestRequest{Name: *name, Category: *category})
	if err != nil {
		return err
	}
	fmt.Printf("Guest %d created.\n", id)
	return nil
}

func runGuests(ctx context.Context, api *client.Client, args []string, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("guests", flag.ExitOnError)
	eventID := fs.Int64("event", 0, "Event id")
	query := fs.String("q", "", "Filter loaded guests by name")
	all := fs.Bool("all", false, "Load every page")
	pages := fs.Int("pages", 1, "Number of pages to load when -all is not set")
	fs.Parse(args)

	if *eventID <= 0 {
		return errors.New("-event is required")
	}

	ledger := guestbook.NewLedger(api, *eventID, guestbook.WithLogger(logger))
	defer ledger.Close()

	for i := 0; *all || i < *pages; i++ {
		fetched, err := ledger.LoadMore(ctx)
		if err != nil {
			return err
		}
		if !fetched {
			break
		}
	}

	printGuests(ledger.Filter(*query))
	stats := ledger.Stats()
	if stats.HasMore {
		fmt.Printf("Loaded %d pages, more available (use -all).\n", stats.Page)
	}
	return nil
}

func runRegister(ctx context.Context, api *client.Client, scanner *bufio.Scanner, args []string, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	eventID := fs.Int64("event", 0, "Event id")
	name := fs.String("name", "", "Guest name to search for")
	amount := fs.String("amount", "", "Amount given")
	fs.Parse(args)

	if *eventID <= 0 {
		return errors.New("-event is required")
	}

	ledger := guestbook.NewLedger(api, *eventID, guestbook.WithLogger(logger))
	defer ledger.Close()
	reg := ledger.NewRegistration()

	results, err := reg.Search(ctx, *name)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("no guest named %q, add one with 'ulma guests:create'", *name)
	}

	choice := 0
	if len(results) > 1 {
		fmt.Println("Several guests share this name:")
		for i, c := range results {
			fmt.Printf("  %d. %s\n", i+1, guestbook.Label(c))
		}
		answer, ok := prompt(scanner, fmt.Sprintf("Select guest (1-%d): ", len(results)))
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(results) {
			return fmt.Errorf("invalid selection %q", answer)
		}
		choice = n - 1
	}
	reg.Select(results[choice])
	reg.SetAmount(*amount)

	err = reg.Submit(ctx)
	if err != nil && !errors.Is(err, guestbook.ErrReloadFailed) {
		return err
	}
	fmt.Printf("Registered %s for %s.\n", *amount, reg.Query())
	if err != nil {
		fmt.Println("Warning:", describe(err))
		return nil
	}

	printGuests(ledger.Visible())
	return nil
}

func printGuests(guests []models.GuestRecord) {
	if len(guests) == 0 {
		fmt.Println("No guests found.")
		return
	}

	fmt.Println(strings.Repeat("-", 48))
	for _, g := range guests {
		fmt.Printf("%-6d %-16s %-10s %12d\n", g.GuestID, g.GuestName, g.Category, g.Amount)
	}
	fmt.Println(strings.Repeat("-", 48))
}

// sessionEnded reports whether a submit error leaves no session to retry on.
// Every other failure keeps the current code and countdown.
func sessionEnded(err error) bool {
	return errors.Is(err, client.ErrClosed) || errors.Is(err, client.ErrStale)
}

// describe turns flow errors into the messages shown to the user.
func describe(err error) string {
	var verr *client.ValidationError
	var unknown *client.UnknownNetworkError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, client.ErrDuplicateResource):
		return "Already registered."
	case errors.Is(err, client.ErrCodeMismatch):
		return "The verification code does not match."
	case errors.Is(err, client.ErrCodeNotFound):
		return "No verification code was issued for this number. Request a new one."
	case errors.Is(err, client.ErrExpired):
		return "The verification time is over."
	case errors.Is(err, client.ErrUnauthorized):
		return "Wrong login id or password."
	case errors.As(err, &unknown):
		return fmt.Sprintf("Network error: %v", unknown)
	default:
		return err.Error()
	}
}
