package storyclient

import (
	"context"
)

// Alerter reports a failed action to the user.
type Alerter interface {
	Alert(err error)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(err error)

func (f AlertFunc) Alert(err error) { f(err) }

// Stories is what Board needs from a Client.
type Stories interface {
	List(ctx context.Context) ([]Story, error)
	Create(ctx context.Context, s Story) (Story, error)
	Update(ctx context.Context, s Story) (Story, error)
	Delete(ctx context.Context, id int64) error
}

// Board is the state of the story editor: the listed stories, the story
// being edited and whether the edit form is shown. Actions report failures
// to the Alerter and leave the state as it was. Board is not safe for
// concurrent use.
type Board struct {
	Stories  []Story
	Story    Story
	ShowForm bool

	client Stories
	alert  Alerter
}

func NewBoard(client Stories, alert Alerter) *Board {
	return &Board{client: client, alert: alert}
}

// List hides the form and reloads the stories.
func (b *Board) List(ctx context.Context) error {
	b.ShowForm = false

	stories, err := b.client.List(ctx)
	if err != nil {
		return b.fail(err)
	}

	b.Stories = stories

	return nil
}

// EditStory opens the form on s.
func (b *Board) EditStory(s Story) {
	b.Story = s
	b.ShowForm = true
}

// OpenNew opens the form on an empty story.
func (b *Board) OpenNew() {
	b.Story = Story{}
	b.ShowForm = true
}

// CreateOrUpdate saves the edited story, creating it when it has no id, and
// reloads the list.
func (b *Board) CreateOrUpdate(ctx context.Context) error {
	var err error
	if b.Story.ID == 0 {
		_, err = b.client.Create(ctx, b.Story)
	} else {
		_, err = b.client.Update(ctx, b.Story)
	}
	if err != nil {
		return b.fail(err)
	}

	return b.List(ctx)
}

// Remove deletes the story and reloads the list.
func (b *Board) Remove(ctx context.Context, id int64) error {
	if err := b.client.Delete(ctx, id); err != nil {
		return b.fail(err)
	}

	return b.List(ctx)
}

func (b *Board) fail(err error) error {
	if b.alert != nil {
		b.alert.Alert(err)
	}

	return err
}
