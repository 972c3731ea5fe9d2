package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"touradmin/internal/booking"
	"touradmin/internal/checkout"
	"touradmin/internal/diagnostics"
	"touradmin/internal/resource"
	"touradmin/internal/session"
	"touradmin/pkg/backend"
	"touradmin/pkg/config"
	"touradmin/pkg/credstore"
	"touradmin/pkg/logging"
	"touradmin/pkg/razorpay"
)

var ErrQuit = errors.New("quit")

type Options struct {
	Config config.Config
	Store  credstore.Store
	In     io.Reader
	Out    io.Writer
	Logger *zap.Logger

	// Gateway overrides the prompt-driven widget.
	Gateway razorpay.Gateway
}

// App is one console process: one session, one pipeline, one current page.
type App struct {
	cfg   config.Config
	store credstore.Store
	out   io.Writer
	log   *zap.Logger

	router   *Router
	prompter *Prompter
	client   *backend.Client
	session  *session.Manager
	bookings *booking.Service
	gateway  razorpay.Gateway
}

func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	log := logging.OrNop(opts.Logger)
	router := NewRouter(opts.Out)
	prompter := NewPrompter(opts.In, opts.Out)

	creds, err := backend.NewCredentials(opts.Config.API.Credentials, opts.Store)
	if err != nil {
		return nil, err
	}
	client, err := backend.New(backend.Options{
		BaseURL:     opts.Config.API.BaseURL,
		Credentials: creds,
		Store:       opts.Store,
		Navigator:   router,
		Timeout:     opts.Config.API.Timeout,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	gw := opts.Gateway
	if gw == nil {
		pg := &PromptGateway{P: prompter}
		if opts.Config.IsDevelopment() && razorpay.IsTestKey(opts.Config.Gateway.KeyID) {
			pg.Secret = opts.Config.Gateway.KeySecret
		}
		gw = pg
	}

	return &App{
		cfg:      opts.Config,
		store:    opts.Store,
		out:      opts.Out,
		log:      log,
		router:   router,
		prompter: prompter,
		client:   client,
		session: session.NewManager(session.Options{
			Store:     opts.Store,
			Client:    client,
			Navigator: router,
			Reconcile: opts.Config.Reconcile,
			Logger:    log,
		}),
		bookings: booking.NewService(client),
		gateway:  gw,
	}, nil
}

func (a *App) Session() *session.Manager { return a.session }

func (a *App) Close() { a.session.Close() }

// Run bootstraps the session and reads commands until quit or end of input.
func (a *App) Run(ctx context.Context) error {
	unsub := a.session.Subscribe(func(s session.Snapshot) {
		a.log.Debug("session", zap.String("phase", string(s.Phase())))
	})
	defer unsub()

	a.session.Bootstrap(ctx)
	fmt.Fprintln(a.out, "touradmin console, type 'help' for commands")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(a.out, a.prompt())
		line, err := a.prompter.ReadLine()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}
}

func (a *App) prompt() string {
	s := a.session.Snapshot()
	switch {
	case s.Bootstrapping:
		return "touradmin(…)> "
	case s.User != nil:
		return "touradmin(" + s.User.Email + ")> "
	default:
		return "touradmin> "
	}
}

type command struct {
	name      string
	usage     string
	page      string
	protected bool
	run       func(a *App, ctx context.Context, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{name: "login", usage: "login", page: backend.PathLogin, run: (*App).login},
		{name: "register", usage: "register", page: backend.PathRegister, run: (*App).register},
		{name: "whoami", usage: "whoami", page: "/profile", protected: true, run: (*App).whoami},
		{name: "logout", usage: "logout", run: (*App).logout},
		{name: "bookings", usage: "bookings", page: "/bookings", protected: true, run: (*App).listBookings},
		{name: "pay", usage: "pay <booking id>", page: "/bookings", protected: true, run: (*App).pay},
		{name: "list", usage: "list <hotels|places|subplaces|packages|bookings|ratings|users>", protected: true, run: (*App).listResource},
		{name: "status", usage: "status", run: (*App).status},
		{name: "debug-auth", usage: "debug-auth", run: (*App).debugAuth},
		{name: "gateway-check", usage: "gateway-check", run: (*App).gatewayCheck},
		{name: "help", usage: "help", run: (*App).help},
		{name: "quit", usage: "quit", run: func(*App, context.Context, []string) error { return ErrQuit }},
	}
}

func lookup(name string) (command, bool) {
	if name == "exit" {
		name = "quit"
	}
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// Execute runs one command line.
func (a *App) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := lookup(strings.ToLower(fields[0]))
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help'", fields[0])
	}
	if cmd.page != "" {
		a.router.Enter(cmd.page)
	}
	if cmd.protected && !a.guard(ctx) {
		return nil
	}
	return cmd.run(a, ctx, fields[1:])
}

// guard is the protected-page check: wait out bootstrap, then require a user.
func (a *App) guard(ctx context.Context) bool {
	if a.session.Snapshot().Phase() == session.PhaseBootstrapping {
		fmt.Fprintln(a.out, "verifying session…")
		select {
		case <-a.session.Ready():
		case <-ctx.Done():
			return false
		}
	}
	if !a.session.Snapshot().Authenticated() {
		fmt.Fprintln(a.out, "please log in first")
		a.router.Navigate(backend.PathLogin)
		return false
	}
	return true
}

func (a *App) help(context.Context, []string) error {
	for _, c := range commands {
		fmt.Fprintf(a.out, "  %s\n", c.usage)
	}
	return nil
}

func (a *App) login(ctx context.Context, _ []string) error {
	email, err := a.prompter.Ask("email")
	if err != nil {
		return err
	}
	password, err := a.prompter.Ask("password")
	if err != nil {
		return err
	}
	resp, err := session.SignIn(ctx, a.client, session.LoginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return a.adopt(resp)
}

func (a *App) register(ctx context.Context, _ []string) error {
	var req session.RegisterRequest
	var err error
	for _, f := range []struct {
		label string
		dst   *string
	}{
		{"first name", &req.FirstName},
		{"last name", &req.LastName},
		{"email", &req.Email},
		{"password", &req.Password},
		{"contact no (optional)", &req.ContactNo},
	} {
		if *f.dst, err = a.prompter.Ask(f.label); err != nil {
			return err
		}
	}
	resp, err := session.SignUp(ctx, a.client, req)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	return a.adopt(resp)
}

func (a *App) adopt(resp session.AuthResponse) error {
	if err := a.session.Login(resp.User); err != nil {
		a.log.Warn("cache user", zap.Error(err))
	}
	fmt.Fprintf(a.out, "welcome, %s\n", resp.User.Name())
	a.router.Navigate("/")
	return nil
}

func (a *App) whoami(context.Context, []string) error {
	u := a.session.Snapshot().User
	if u == nil {
		return errors.New("not logged in")
	}
	fmt.Fprintf(a.out, "%s <%s>\n", u.Name(), u.Email)
	fmt.Fprintf(a.out, "id: %s admin: %t\n", u.ID, u.IsAdmin)
	if u.ContactNo != "" {
		fmt.Fprintf(a.out, "contact: %s\n", u.ContactNo)
	}
	return nil
}

func (a *App) logout(ctx context.Context, _ []string) error {
	a.session.Logout(ctx)
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *App) listBookings(ctx context.Context, _ []string) error {
	list, err := a.bookings.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no bookings")
		return nil
	}
	for _, b := range list {
		fmt.Fprintf(a.out, "%-26s %-24s %10s  %-8s %s\n", b.ID, b.GuestName, b.FinalAmount.StringFixed(2), b.PaymentStatus, b.Description())
	}
	return nil
}

func (a *App) pay(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pay <booking id>")
	}
	b, err := a.bookings.Get(ctx, args[0])
	if err != nil {
		return err
	}
	target, err := b.CheckoutTarget()
	if err != nil {
		return err
	}

	co, err := checkout.New(target, checkout.Options{
		Backend:      a.bookings,
		Gateway:      a.gateway,
		Confirmer:    a.prompter,
		KeyID:        a.cfg.Gateway.KeyID,
		Currency:     a.cfg.Gateway.Currency,
		MerchantName: a.cfg.Gateway.MerchantName,
		DevMode:      a.cfg.IsDevelopment(),
		Timeout:      a.cfg.API.Timeout,
		Logger:       a.log,
	})
	if err != nil {
		return err
	}
	defer co.Close()
	unsub := co.Subscribe(func(s checkout.Snapshot) {
		switch s.State {
		case checkout.StateOrderCreating:
			fmt.Fprintln(a.out, "creating order…")
		case checkout.StateVerifying:
			fmt.Fprintln(a.out, "verifying payment…")
		}
	})
	defer unsub()

	if err := co.Pay(ctx); err != nil {
		return err
	}

	s := co.Snapshot()
	switch s.State {
	case checkout.StateConfirmed:
		if s.Simulated {
			fmt.Fprintf(a.out, "payment simulated (development mode), payment id %s\n", s.PaymentID)
		} else {
			fmt.Fprintf(a.out, "payment successful, booking confirmed (payment id %s)\n", s.PaymentID)
		}
	case checkout.StateFailed:
		fmt.Fprintf(a.out, "payment failed: %s\n", s.LastError)
	case checkout.StateIdle:
		if s.LastError == "" {
			fmt.Fprintln(a.out, "payment cancelled")
		}
	default:
		fmt.Fprintf(a.out, "payment %s, check 'bookings' later\n", strings.ToLower(string(s.State)))
	}
	return nil
}

func (a *App) listResource(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: list <resource>")
	}
	name, err := resource.Parse(args[0])
	if err != nil {
		return err
	}
	a.router.Enter("/" + string(name))
	recs, err := resource.NewCollection(a.client, name).List(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].ID() < recs[j].ID() })
	for _, r := range recs {
		label := r.String("name")
		if label == "" {
			label = r.String("title")
		}
		if label == "" {
			label = strings.TrimSpace(r.String("firstName") + " " + r.String("lastName"))
		}
		fmt.Fprintf(a.out, "%-26s %s\n", r.ID(), label)
	}
	fmt.Fprintf(a.out, "%d %s\n", len(recs), name)
	return nil
}

func (a *App) status(ctx context.Context, _ []string) error {
	diagnostics.WriteProbe(a.out, diagnostics.ProbeBackend(ctx, a.client))
	return nil
}

func (a *App) debugAuth(context.Context, []string) error {
	diagnostics.WriteAuth(a.out, diagnostics.DescribeAuth(a.store, a.client.Credentials().Kind()))
	fmt.Fprintf(a.out, "session: %s\n", a.session.Snapshot().Phase())
	return nil
}

func (a *App) gatewayCheck(context.Context, []string) error {
	diagnostics.WriteGateway(a.out, diagnostics.CheckGateway(a.cfg, a.gateway))
	return nil
}
