package extract

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("FromText", func() {
	var (
		text   string
		fields Fields
	)

	JustBeforeEach(func() {
		fields = FromText(text)
	})

	When("the total is labeled with a European currency marker", func() {
		BeforeEach(func() {
			text = "Mercearia Central\nFatura FT 2025/123\nTotal: Eur 1.234,56\n"
		})

		It("should apply the comma-decimal convention", func() {
			Expect(fields.TotalValue).To(BeNumerically("~", 1234.56, 0.001))
		})

		It("should report the text method", func() {
			Expect(fields.Method).To(Equal(MethodText))
		})

		It("should detect the currency", func() {
			Expect(fields.Currency).To(Equal("EUR"))
		})

		It("should prefer the series-prefixed invoice number", func() {
			Expect(fields.InvoiceNumber).To(Equal("FT 2025/123"))
		})

		It("should take the first line as the supplier name", func() {
			Expect(fields.SupplierName).To(Equal("Mercearia Central"))
		})
	})

	When("the total is labeled with a dollar amount", func() {
		BeforeEach(func() {
			text = "Acme Supplies Inc\nInvoice No: 10442\nTotal Amount Due: $1,234.56\n"
		})

		It("should apply the period-decimal convention", func() {
			Expect(fields.TotalValue).To(BeNumerically("~", 1234.56, 0.001))
		})

		It("should detect the currency", func() {
			Expect(fields.Currency).To(Equal("USD"))
		})

		It("should extract the labeled invoice number", func() {
			Expect(fields.InvoiceNumber).To(Equal("10442"))
		})
	})

	When("the total carries a label but no currency", func() {
		BeforeEach(func() {
			text = "Loja do Bairro\nValor Total: 55,20\nObrigado pela sua visita\n"
		})

		It("should still extract the amount", func() {
			Expect(fields.TotalValue).To(BeNumerically("~", 55.20, 0.001))
		})

		It("should leave the currency empty", func() {
			Expect(fields.Currency).To(BeEmpty())
		})
	})

	When("only a trailing decimal exists near the end of the document", func() {
		BeforeEach(func() {
			text = "Algum Fornecedor\nlinha sem estrutura\n89,70 EUR\n"
		})

		It("should fall back to the trailing amount", func() {
			Expect(fields.TotalValue).To(BeNumerically("~", 89.70, 0.001))
		})
	})

	When("the first line is implausibly long", func() {
		BeforeEach(func() {
			text = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\nSupermercado Boa Vista, NIF 501234567\nTotal: 12,00\n"
		})

		It("should take the name from the tax-ID marker line instead", func() {
			Expect(fields.SupplierName).To(Equal("Supermercado Boa Vista"))
		})
	})

	When("the text contains no recognizable fields", func() {
		BeforeEach(func() {
			text = "\n\n"
		})

		It("should return an empty record rather than failing", func() {
			Expect(fields.Empty()).To(BeTrue())
		})
	})
})

var _ = Describe("parseAmount", func() {
	It("treats a comma after the last period as the decimal separator", func() {
		value, ok := parseAmount("1.234,56")
		Expect(ok).To(BeTrue())
		Expect(value).To(BeNumerically("~", 1234.56, 0.001))
	})

	It("treats a period after the last comma as the decimal separator", func() {
		value, ok := parseAmount("1,234.56")
		Expect(ok).To(BeTrue())
		Expect(value).To(BeNumerically("~", 1234.56, 0.001))
	})

	It("handles plain comma decimals", func() {
		value, ok := parseAmount("55,20")
		Expect(ok).To(BeTrue())
		Expect(value).To(BeNumerically("~", 55.20, 0.001))
	})

	It("drops currency symbols and spaces", func() {
		value, ok := parseAmount("€ 1 234,56")
		Expect(ok).To(BeTrue())
		Expect(value).To(BeNumerically("~", 1234.56, 0.001))
	})

	It("rejects values without digits", func() {
		_, ok := parseAmount("EUR")
		Expect(ok).To(BeFalse())
	})

	It("rejects zero amounts", func() {
		_, ok := parseAmount("0,00")
		Expect(ok).To(BeFalse())
	})
})
