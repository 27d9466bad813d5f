package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pior/redis"
	"github.com/pior/redis/resp"
)

func main() {
	var (
		addr     = flag.String("addr", "localhost:6379", "Server address")
		password = flag.String("password", "", "Password sent with AUTH")
		username = flag.String("username", "", "Username sent with AUTH")
		db       = flag.Int("db", 0, "Database to select")
		timeout  = flag.Duration("timeout", 5*time.Second, "Timeout per command")
	)
	flag.Parse()

	client, err := redis.NewClient(redis.Config{
		Address:  *addr,
		Username: *username,
		Password: *password,
		Database: *db,
		MaxSize:  1,
	})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("Connected to %s. Type 'help' for help, 'quit' to exit.\n", *addr)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts, err := splitArgs(scanner.Text())
		if err != nil {
			fmt.Printf("Invalid input: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		case "help":
			fmt.Println("Any command is sent as is, e.g. SET key value PX 1000.")
			fmt.Println("Arguments can be quoted with double quotes.")
			fmt.Println("  stats  - Show client and pool statistics")
			fmt.Println("  quit   - Exit the CLI")

		case "stats":
			printStats(client)

		default:
			ctx, cancel := context.WithTimeout(context.Background(), *timeout)
			start := time.Now()
			v, err := client.Do(ctx, parts[0], parts[1:]...)
			duration := time.Since(start)
			cancel()

			if err != nil {
				fmt.Printf("(error) %v (took %v)\n", err, duration)
				continue
			}
			printValue(v, "")
			fmt.Printf("(took %v)\n", duration)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

// splitArgs splits a line on spaces, keeping double-quoted arguments whole.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

func printValue(v resp.Value, indent string) {
	switch v.Kind() {
	case resp.KindNull:
		fmt.Println("(nil)")
	case resp.KindInteger:
		fmt.Printf("(integer) %d\n", v.Int())
	case resp.KindSimpleString:
		fmt.Println(v.Text())
	case resp.KindBulkString:
		fmt.Printf("%q\n", v.Text())
	case resp.KindError:
		fmt.Printf("(error) %s %s\n", v.ErrorType(), v.ErrorMessage())
	case resp.KindArray:
		if v.Len() == 0 {
			fmt.Println("(empty array)")
			return
		}
		for i, item := range v.Items() {
			if i > 0 {
				fmt.Print(indent)
			}
			prefix := fmt.Sprintf("%d) ", i+1)
			fmt.Print(prefix)
			printValue(item, indent+strings.Repeat(" ", len(prefix)))
		}
	}
}

func printStats(client *redis.Client) {
	stats := client.Stats()
	pool := client.PoolStats()

	fmt.Printf("Commands: %d, errors: %d (connection: %d, server: %d)\n",
		stats.Commands, stats.Errors, stats.ConnectionErrors, stats.ServerErrors)
	fmt.Printf("Loading retries: %d, script reloads: %d\n", stats.LoadingRetries, stats.ScriptReloads)
	fmt.Printf("Pool: total=%d active=%d idle=%d created=%d destroyed=%d\n",
		pool.TotalConns, pool.ActiveConns, pool.IdleConns, pool.CreatedConns, pool.DestroyedConns)
}
