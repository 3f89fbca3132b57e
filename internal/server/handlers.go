package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/calvinalkan/jifdb/pkg/jifdb"
)

func (s *Server) listCollections(c *fiber.Ctx) error {
	names, err := s.db.ListCollections()
	if err != nil {
		return err
	}

	if names == nil {
		names = []string{}
	}

	return c.JSON(fiber.Map{"collections": names})
}

func (s *Server) dropCollection(c *fiber.Ctx) error {
	name := c.Params("name")

	_, err := s.existing(name)
	if err != nil {
		return err
	}

	err = s.db.DeleteCollection(name)
	if err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) saveCollection(c *fiber.Ctx) error {
	err := s.db.SaveCollection(c.Params("name"))
	if err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) readDocuments(c *fiber.Ctx) error {
	coll, err := s.existing(c.Params("name"))
	if err != nil {
		return err
	}

	docs, err := coll.Read()
	if err != nil {
		return err
	}

	return c.JSON(docs)
}

func (s *Server) createDocument(c *fiber.Ctx) error {
	coll, err := s.db.OpenCollection(c.Params("name"))
	if err != nil {
		return err
	}

	doc, err := coll.CreateJSON(c.Body())
	if err != nil {
		return err
	}

	err = s.persist(coll)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) readDocument(c *fiber.Ctx) error {
	coll, id, err := s.target(c)
	if err != nil {
		return err
	}

	doc, err := coll.ReadID(id)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (s *Server) updateDocument(c *fiber.Ctx) error {
	coll, id, err := s.target(c)
	if err != nil {
		return err
	}

	doc, err := coll.UpdateJSON(id, c.Body())
	if err != nil {
		return err
	}

	err = s.persist(coll)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (s *Server) replaceDocument(c *fiber.Ctx) error {
	coll, id, err := s.target(c)
	if err != nil {
		return err
	}

	doc, err := coll.ReplaceJSON(id, c.Body())
	if err != nil {
		return err
	}

	err = s.persist(coll)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func (s *Server) deleteDocument(c *fiber.Ctx) error {
	coll, id, err := s.target(c)
	if err != nil {
		return err
	}

	doc, err := coll.Delete(id)
	if err != nil {
		return err
	}

	err = s.persist(coll)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

// target resolves the collection and document id of a /documents/{id} route.
func (s *Server) target(c *fiber.Ctx) (*jifdb.Collection, int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, 0, fiber.NewError(fiber.StatusBadRequest, "invalid document id: "+c.Params("id"))
	}

	coll, err := s.existing(c.Params("name"))
	if err != nil {
		return nil, 0, err
	}

	return coll, id, nil
}

// existing opens name only if it is registered or its file is on disk.
// Only POST .../documents creates collections.
func (s *Server) existing(name string) (*jifdb.Collection, error) {
	ok, err := s.db.HasCollection(name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "collection not found: "+name)
	}

	return s.db.OpenCollection(name)
}

func (s *Server) persist(coll *jifdb.Collection) error {
	if !s.opts.AutoSave {
		return nil
	}

	return s.db.SaveCollection(coll.Name())
}
