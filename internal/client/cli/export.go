package cli

import (
	"context"
	"fmt"
	"os"
)

// Export prompts for a file path and writes an encrypted backup there.
func (a *App) Export(ctx context.Context) error {
	path, err := getSimpleText(a.reader, "Enter export file path", os.Stdout)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	defer f.Close()

	n, err := a.export.Export(ctx, f)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	fmt.Printf("Exported %d items to %s\n", n, path)
	return nil
}

// Import prompts for a file path and merges the backup into the local
// store. Imported items upload on the next sync.
func (a *App) Import(ctx context.Context) error {
	path, err := getSimpleText(a.reader, "Enter import file path", os.Stdout)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	defer f.Close()

	n, err := a.export.Import(ctx, f)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	fmt.Printf("Imported %d items from %s\n", n, path)
	return nil
}
