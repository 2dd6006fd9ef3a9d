package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"goflare.io/pos/models"
	"goflare.io/pos/pricing"
)

var errQuit = errors.New("quit")

type cashier interface {
	Type(keys string) string
	Submit() bool
	UpdateQuantity(cartItemID, productID string, quantity int)
	RemoveFromCart(id string)
	ClearCart()
	Items() []models.LineItem
	Totals() pricing.Totals
}

// terminal reads stdin lines. Plain lines are typed into the scan field
// followed by Enter; lines starting with ':' are commands.
type terminal struct {
	session cashier
	in      io.Reader
	out     io.Writer
}

func newTerminal(session cashier, in io.Reader, out io.Writer) *terminal {
	return &terminal{session: session, in: in, out: out}
}

func (t *terminal) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(t.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	t.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := t.handle(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(t.out, "error: %v\n", err)
			}
			t.prompt()
		}
	}
}

func (t *terminal) prompt() {
	fmt.Fprint(t.out, "> ")
}

func (t *terminal) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, ":") {
		t.session.Type(line)
		t.session.Submit()
		return nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "qty":
		if len(fields) != 3 {
			return fmt.Errorf("usage: :qty <product id> <quantity>")
		}
		qty, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", fields[2])
		}
		t.session.UpdateQuantity(t.cartItemID(fields[1]), fields[1], qty)
	case "rm":
		if len(fields) != 2 {
			return fmt.Errorf("usage: :rm <product or cart item id>")
		}
		t.session.RemoveFromCart(fields[1])
	case "clear":
		t.session.ClearCart()
	case "cart":
		t.printCart()
	case "total":
		t.printTotals()
	case "quit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}

func (t *terminal) cartItemID(productID string) string {
	for _, item := range t.session.Items() {
		if item.ID == productID {
			return item.CartItemID
		}
	}
	return ""
}

func (t *terminal) printCart() {
	items := t.session.Items()
	if len(items) == 0 {
		fmt.Fprintln(t.out, "cart is empty")
		return
	}
	for _, item := range items {
		fmt.Fprintf(t.out, "%-12s %-24s %3d x %s\n", item.ID, item.Name, item.Quantity, item.Price.StringFixed(2))
	}
}

func (t *terminal) printTotals() {
	totals := t.session.Totals()
	cur := strings.ToUpper(string(totals.Currency))
	exp := pricing.Exponent(totals.Currency)
	fmt.Fprintf(t.out, "items    %d\n", totals.ItemCount)
	fmt.Fprintf(t.out, "subtotal %s %s\n", totals.Subtotal.StringFixed(exp), cur)
	fmt.Fprintf(t.out, "vat      %s %s\n", totals.VAT.StringFixed(exp), cur)
	fmt.Fprintf(t.out, "total    %s %s\n", totals.GrandTotal.StringFixed(exp), cur)
	fmt.Fprintf(t.out, "points   %d\n", totals.LoyaltyPoints)
}
