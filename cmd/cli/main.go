package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

type cli struct {
	api     *apiClient
	session *sessionStore
	out     io.Writer
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	session := defaultSessionStore()
	c := &cli{
		api:     newAPIClient(getAPIURL(), session.load()),
		session: session,
		out:     os.Stdout,
	}

	if err := c.run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(command string, args []string) error {
	switch command {
	case "auth":
		return c.handleAuth(args)
	case "tenants":
		return c.handleTenants(args)
	case "help":
		printUsage(c.out)
		return nil
	default:
		printUsage(c.out)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (c *cli) handleAuth(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storelens auth <register|login|logout|whoami|passwd>")
	}

	switch args[0] {
	case "register":
		return c.register(args[1:])
	case "login":
		return c.login(args[1:])
	case "logout":
		return c.logout()
	case "whoami":
		return c.whoAmI()
	case "passwd":
		return c.changePassword(args[1:])
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func (c *cli) handleTenants(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storelens tenants <list|link|sync|dashboard>")
	}

	switch args[0] {
	case "list":
		return c.listTenants()
	case "link":
		return c.linkTenant(args[1:])
	case "sync":
		return c.syncTenant(args[1:])
	case "dashboard":
		return c.dashboard(args[1:])
	default:
		return fmt.Errorf("unknown tenants command: %s", args[0])
	}
}

// Auth commands

func credentialFlags(name string, args []string) (string, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return "", "", fmt.Errorf("email and password are required")
	}
	return *email, *password, nil
}

func (c *cli) register(args []string) error {
	email, password, err := credentialFlags("register", args)
	if err != nil {
		return err
	}

	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if _, err := c.api.do(http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": password}, &user); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Fprintf(c.out, "✓ User registered: %s (%s)\n", user.Email, user.ID)
	return nil
}

func (c *cli) login(args []string) error {
	email, password, err := credentialFlags("login", args)
	if err != nil {
		return err
	}

	var result struct {
		ExpiresAt time.Time `json:"expiresAt"`
	}
	resp, err := c.api.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &result)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	token := sessionToken(resp)
	if token == "" {
		return fmt.Errorf("login failed: server set no session")
	}
	if err := c.session.save(token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.api.token = token
	fmt.Fprintf(c.out, "✓ Logged in as: %s (session expires %s)\n", email, result.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func (c *cli) logout() error {
	// the server only clears a browser cookie, the local session is what matters
	_, _ = c.api.do(http.MethodPost, "/api/auth/logout", nil, nil)
	if err := c.session.clear(); err != nil {
		return err
	}
	c.api.token = ""
	fmt.Fprintln(c.out, "✓ Logged out")
	return nil
}

func (c *cli) whoAmI() error {
	if c.api.token == "" {
		fmt.Fprintln(c.out, "Not logged in")
		return nil
	}
	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if _, err := c.api.do(http.MethodGet, "/api/auth/me", nil, &me); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Logged in as: %s (%s)\n", me.Email, me.ID)
	return nil
}

func (c *cli) changePassword(args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ContinueOnError)
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password (at least 7 characters)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	body := map[string]string{"oldPassword": *oldPassword, "newPassword": *newPassword}
	if _, err := c.api.do(http.MethodPost, "/api/auth/change-password", body, nil); err != nil {
		return fmt.Errorf("password change failed: %w", err)
	}
	fmt.Fprintln(c.out, "✓ Password changed")
	return nil
}

// Tenant commands

func (c *cli) listTenants() error {
	var tenants []struct {
		ID           string     `json:"id"`
		StoreURL     string     `json:"storeUrl"`
		LastSyncedAt *time.Time `json:"lastSyncedAt"`
		Orders       []struct{} `json:"orders"`
		Checkouts    []struct{} `json:"checkouts"`
		Customers    []struct{} `json:"customers"`
	}
	if _, err := c.api.do(http.MethodGet, "/api/tenants", nil, &tenants); err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTORE\tORDERS\tCUSTOMERS\tCHECKOUTS\tLAST SYNC")
	for _, t := range tenants {
		lastSync := "never"
		if t.LastSyncedAt != nil {
			lastSync = t.LastSyncedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", t.ID, t.StoreURL, len(t.Orders), len(t.Customers), len(t.Checkouts), lastSync)
	}
	return w.Flush()
}

func (c *cli) linkTenant(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storelens tenants link <tenant-id>")
	}
	var t struct {
		StoreURL string `json:"storeUrl"`
	}
	if _, err := c.api.do(http.MethodPost, "/api/tenants/"+url.PathEscape(args[0])+"/link", nil, &t); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}
	fmt.Fprintf(c.out, "✓ Linked %s\n", t.StoreURL)
	return nil
}

func (c *cli) syncTenant(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: storelens tenants sync <tenant-id>")
	}
	var res struct {
		Orders     int   `json:"orders"`
		Customers  int   `json:"customers"`
		Checkouts  int   `json:"checkouts"`
		DurationMS int64 `json:"durationMs"`
	}
	if _, err := c.api.do(http.MethodPost, "/api/tenants/"+url.PathEscape(args[0])+"/sync", nil, &res); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Fprintf(c.out, "✓ Synced %d orders, %d customers, %d checkouts in %s\n",
		res.Orders, res.Customers, res.Checkouts, time.Duration(res.DurationMS)*time.Millisecond)
	return nil
}

type dayCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type customerStats struct {
	FirstName  string  `json:"firstName"`
	LastName   string  `json:"lastName"`
	Email      string  `json:"email"`
	TotalSpend float64 `json:"totalSpend"`
	OrderCount int     `json:"orderCount"`
	Status     string  `json:"status"`
}

func (c *cli) dashboard(args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	days := fs.Int("days", 30, "chart window: 7, 30 or 90")
	tz := fs.String("tz", "", "IANA timezone for day buckets")
	if len(args) < 1 {
		return fmt.Errorf("usage: storelens tenants dashboard <tenant-id> [-days 30] [-tz Area/City]")
	}
	tenantID := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	q := url.Values{"days": {strconv.Itoa(*days)}}
	if *tz != "" {
		q.Set("tz", *tz)
	}

	var d struct {
		Timezone string `json:"timezone"`
		Totals   struct {
			Orders             int     `json:"orders"`
			Revenue            float64 `json:"revenue"`
			Customers          int     `json:"customers"`
			AbandonedCheckouts int     `json:"abandonedCheckouts"`
		} `json:"totals"`
		DailyOrders        []dayCount `json:"dailyOrders"`
		AbandonedCheckouts []dayCount `json:"abandonedCheckouts"`
		TopCustomers       struct {
			Top []customerStats `json:"top"`
		} `json:"topCustomers"`
	}
	path := "/api/tenants/" + url.PathEscape(tenantID) + "/dashboard?" + q.Encode()
	if _, err := c.api.do(http.MethodGet, path, nil, &d); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Orders: %d  Revenue: %.2f  Customers: %d  Abandoned checkouts (30d): %d  [%s]\n\n",
		d.Totals.Orders, d.Totals.Revenue, d.Totals.Customers, d.Totals.AbandonedCheckouts, d.Timezone)

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tORDERS")
	for _, b := range d.DailyOrders {
		fmt.Fprintf(w, "%s\t%d\n", b.Label, b.Count)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CUSTOMER\tEMAIL\tSPEND\tORDERS\tSTATUS")
	for _, cu := range d.TopCustomers.Top {
		fmt.Fprintf(w, "%s %s\t%s\t%.2f\t%d\t%s\n", cu.FirstName, cu.LastName, cu.Email, cu.TotalSpend, cu.OrderCount, cu.Status)
	}
	return w.Flush()
}

func getAPIURL() string {
	if u := os.Getenv("STORELENS_API"); u != "" {
		return u
	}
	return "http://localhost:3000"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `StoreLens CLI

Usage:
  storelens <command> [options]

Commands:
  auth      Account (register, login, logout, whoami, passwd)
  tenants   Stores (list, link, sync, dashboard)
  help      Show this help message

Environment Variables:
  STORELENS_API    API endpoint (default: http://localhost:3000)

Examples:
  storelens auth register -email owner@example.com -password s3cret!
  storelens auth login -email owner@example.com -password s3cret!
  storelens tenants list
  storelens tenants dashboard <tenant-id> -days 7 -tz Europe/Berlin
`)
}
