package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/suite"
)

type linkSQLiteStoreSuite struct {
	linkStore *LinkSQLiteStore
	db        *sql.DB
	suite.Suite
}

func TestLinkSQLiteStore(t *testing.T) {
	suite.Run(t, new(linkSQLiteStoreSuite))
}

func (suite *linkSQLiteStoreSuite) SetupTest() {
	suite.db = openTestDB()
	suite.linkStore = NewLinkSQLiteStore(suite.db, suite.db)
}

func (suite *linkSQLiteStoreSuite) TearDownTest() {
	_ = suite.db.Close()
}

func (suite *linkSQLiteStoreSuite) TestLinkSQLiteStore_CreateLink() {
	suite.Run("success - duplicate facts stored once", func() {
		// arrange
		l := &Link{
			ProducerJob:    "up",
			ProducerNumber: 1,
			ConsumerJob:    "down",
			ConsumerNumber: 1,
			Artifact:       "app.jar",
		}

		// act
		err1 := suite.linkStore.CreateLink(context.Background(), l)
		err2 := suite.linkStore.CreateLink(context.Background(), l)
		links, listErr := suite.linkStore.ListLinks(context.Background())

		// assert
		suite.NoError(err1)
		suite.NoError(err2)
		suite.NoError(listErr)
		suite.Len(links, 1)
		suite.Equal("app.jar", links[0].Artifact)
		suite.Equal(int64(1), links[0].ConsumerNumber)
	})
	suite.Run("success - display names stored as given", func() {
		// arrange
		ctx := context.Background()
		l := &Link{
			ProducerJob:    "lib",
			ProducerNumber: 3,
			ConsumerJob:    "app",
			ConsumerNumber: 9,
			ProducerName:   "Core Library #3",
			ConsumerName:   "App <beta> #9",
			Artifact:       "lib.jar",
		}

		// act
		err := suite.linkStore.CreateLink(ctx, l)
		links, listErr := suite.linkStore.ListLinks(ctx)

		// assert
		suite.NoError(err)
		suite.NoError(listErr)
		suite.Require().NotEmpty(links)
		got := links[len(links)-1]
		suite.Equal("Core Library #3", got.ProducerName)
		suite.Equal("App <beta> #9", got.ConsumerName)
	})
}

func (suite *linkSQLiteStoreSuite) TestLinkSQLiteStore_DeleteRecordLinks() {
	suite.Run("success - links on either side removed", func() {
		// arrange
		ctx := context.Background()
		suite.NoError(suite.linkStore.CreateLink(ctx, &Link{ProducerJob: "a", ProducerNumber: 1, ConsumerJob: "b", ConsumerNumber: 1}))
		suite.NoError(suite.linkStore.CreateLink(ctx, &Link{ProducerJob: "b", ProducerNumber: 1, ConsumerJob: "c", ConsumerNumber: 1}))
		suite.NoError(suite.linkStore.CreateLink(ctx, &Link{ProducerJob: "a", ProducerNumber: 2, ConsumerJob: "c", ConsumerNumber: 2}))

		// act
		err := suite.linkStore.DeleteRecordLinks(ctx, "b", 1)
		links, listErr := suite.linkStore.ListLinks(ctx)

		// assert
		suite.NoError(err)
		suite.NoError(listErr)
		suite.Len(links, 1)
		suite.Equal(int64(2), links[0].ProducerNumber)
	})
}
