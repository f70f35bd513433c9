package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quillnotes/quill/internal/client/models"
	"github.com/quillnotes/quill/internal/client/services"
)

// AddNote prompts for a title and a multi-line body and stores the note.
func (a *App) AddNote(ctx context.Context) error {
	title, err := getSimpleText(a.reader, "Enter title", os.Stdout)
	if err != nil {
		return err
	}

	text, err := GetMultiline(a.reader, "Enter note text", os.Stdout)
	if err != nil {
		return err
	}

	id, err := a.items.AddNote(ctx, title, text)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}

	fmt.Println("Added", id)
	return nil
}

// EditNote prompts for a note id and replacement content.
func (a *App) EditNote(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter note id to edit", os.Stdout)
	if err != nil {
		return err
	}

	current, err := a.items.Get(ctx, id)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	if current.Note != nil {
		fmt.Println("Current title:", current.Note.Title)
	}

	title, err := getSimpleText(a.reader, "Enter new title", os.Stdout)
	if err != nil {
		return err
	}
	text, err := GetMultiline(a.reader, "Enter new note text", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.items.UpdateNote(ctx, id, title, text); err != nil {
		fmt.Println("Error:", err)
		return err
	}
	fmt.Println("Updated", id)
	return nil
}

// AddTag prompts for a tag title and a list of note ids to reference.
func (a *App) AddTag(ctx context.Context) error {
	title, err := getSimpleText(a.reader, "Enter tag title", os.Stdout)
	if err != nil {
		return err
	}

	raw, err := getSimpleText(a.reader, "Enter note ids (space separated)", os.Stdout)
	if err != nil {
		return err
	}

	id, err := a.items.AddTag(ctx, title, strings.Fields(raw))
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	fmt.Println("Added tag", id)
	return nil
}

// List prints all notes and tags, newest first.
func (a *App) List(ctx context.Context) error {
	notes, err := a.items.List(ctx, models.ContentTypeNote)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}

	for _, e := range notes {
		fmt.Println(formatEntry(&e))
	}

	tags, err := a.items.List(ctx, models.ContentTypeTag)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}
	for _, e := range tags {
		fmt.Println(formatEntry(&e))
	}
	return nil
}

// Show prompts for an id and prints the decrypted item.
func (a *App) Show(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter item id to show", os.Stdout)
	if err != nil {
		return err
	}

	entry, err := a.items.Get(ctx, id)
	if err != nil {
		fmt.Println("Error:", err)
		return err
	}

	switch {
	case entry.Note != nil:
		fmt.Println(entry.Note.Title)
		fmt.Println(entry.Note.Text)
	case entry.Tag != nil:
		fmt.Println(entry.Tag.Title)
		for _, ref := range entry.Tag.References {
			fmt.Println("  -", ref.ID)
		}
	}
	return nil
}

// Delete prompts for an id and tombstones the item.
func (a *App) Delete(ctx context.Context) error {
	id, err := getSimpleText(a.reader, "Enter item id to delete", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.items.Delete(ctx, id); err != nil {
		fmt.Println("Error:", err)
		return err
	}
	fmt.Println("Deleted", id)
	return nil
}

// Sync runs one synchronization cycle on demand.
func (a *App) Sync(ctx context.Context) error {
	if err := a.engine.Sync(ctx); err != nil {
		fmt.Println("Sync failed:", err)
		return err
	}
	fmt.Println("Synced")
	return nil
}

func formatEntry(e *services.ItemEntry) string {
	var title string
	switch {
	case e.Unreadable:
		title = "<unreadable>"
	case e.Note != nil:
		title = e.Note.Title
	case e.Tag != nil:
		title = "#" + e.Tag.Title
	}

	marker := " "
	if e.Dirty {
		marker = "*"
	}
	updated := time.UnixMilli(e.UpdatedAt).Format("2006-01-02 15:04")
	return fmt.Sprintf("%s %s  %s  %s", marker, e.ID, updated, title)
}
