package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/novavault/recovery-orchestrator/internal/db/model"
)

// SaveUnprocessableMessage stores a message that could not be processed so it
// can be replayed later via the replay script.
func (db *Database) SaveUnprocessableMessage(ctx context.Context, messageBody, receipt string) error {
	unprocessableMsgClient := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	document := model.NewUnprocessableMessageDocument(messageBody, receipt)
	_, err := unprocessableMsgClient.InsertOne(ctx, document)
	return err
}

// FindUnprocessableMessages returns all stored unprocessable messages.
func (db *Database) FindUnprocessableMessages(ctx context.Context) ([]model.UnprocessableMessageDocument, error) {
	client := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	cursor, err := client.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []model.UnprocessableMessageDocument
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteUnprocessableMessage removes a message after a successful replay.
func (db *Database) DeleteUnprocessableMessage(ctx context.Context, receipt string) error {
	client := db.Client.Database(db.DbName).Collection(model.UnprocessableMsgCollection)
	_, err := client.DeleteOne(ctx, bson.M{"receipt": receipt})
	return err
}
