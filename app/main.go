package main

import (
	"fmt"
	"os"
	"strings"
)

// Usage: your_program.sh sample.db .dbinfo
// Usage: your_program.sh sample.db "SELECT name FROM apples"
func main() {
	if err := runProgram(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runProgram implements the CLI entry point as a plain function so it
// can be driven from a test with an arbitrary argv, without touching
// the real os.Args.
func runProgram(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("Usage: %s <database file> <command>", programName(args))
	}

	dbPath := args[1]
	rest := args[2:]

	jsonOutput := false
	if len(rest) > 1 && rest[len(rest)-1] == "--json" {
		jsonOutput = true
		rest = rest[:len(rest)-1]
	}
	command := strings.Join(rest, " ")

	e, err := openEngine(dbPath)
	if err != nil {
		return err
	}
	defer e.Close()
	if jsonOutput {
		e.UseJSONOutput()
	}

	switch {
	case command == ".dbinfo":
		return runDBInfo(e)
	case command == ".tables":
		return runTables(e)
	default:
		return runSelect(e, command)
	}
}

func programName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "sqlitereader"
}

func runDBInfo(e *engine) error {
	pageSize, objectCount, err := e.DBInfo()
	if err != nil {
		return err
	}
	fmt.Printf("database page size: %v\n", pageSize)
	fmt.Printf("number of tables: %v\n", objectCount)
	return nil
}

func runTables(e *engine) error {
	names := e.TableNames()
	fmt.Println(strings.Join(names, " "))
	return nil
}

func runSelect(e *engine, query string) error {
	return e.ExecuteSelect(query, func(line string) {
		fmt.Println(line)
	})
}
